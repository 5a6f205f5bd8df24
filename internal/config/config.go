// Package config resolves CLI flags and a reverse-proxy YAML file into the
// Config values internal/proxy and cmd/multiproxy consume.
package config

import (
	"encoding/base64"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/arloor/multiproxy/internal/proxy"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved, validated server configuration.
type Config struct {
	Ports           []int
	Cert            string
	Key             string
	OverTLS         bool
	WebContentPath  string
	RefererKeywords []string
	NeverAskForAuth bool
	Credentials     proxy.CredentialTable
	ServingPolicy   proxy.ServingPolicy
	ReverseProxy    *proxy.ReverseProxyConfig
	LogDir          string
	LogFile         string
}

// githubProxyRules are the fixed rules '--enable-github-proxy' synthesizes
// under the /github/ prefix: release assets, raw file content, git archives,
// and release-asset object storage.
var githubProxyRules = []proxy.LocationRule{
	{PathPrefix: "/github/releases/", UpstreamBase: "https://github.com/"},
	{PathPrefix: "/github/raw/", UpstreamBase: "https://raw.githubusercontent.com/"},
	{PathPrefix: "/github/archive/", UpstreamBase: "https://codeload.github.com/"},
	{PathPrefix: "/github/objects/", UpstreamBase: "https://objects.githubusercontent.com/"},
}

// Resolve turns parsed Flags into a Config, reading and parsing the
// reverse-proxy YAML file if one was given.
func Resolve(f *Flags) (*Config, error) {
	cfg := &Config{
		Ports:           f.Ports,
		Cert:            f.Cert,
		Key:             f.Key,
		OverTLS:         f.OverTLS,
		WebContentPath:  f.WebContentPath,
		RefererKeywords: f.RefererKeywordsToSelf,
		NeverAskForAuth: f.NeverAskForAuth,
		LogDir:          f.LogDir,
		LogFile:         f.LogFile,
	}

	credentials, err := BuildCredentialTable(f.Users)
	if err != nil {
		return nil, err
	}
	cfg.Credentials = credentials

	policy, err := BuildServingPolicy(f.ProhibitServing, f.AllowServingNetwork)
	if err != nil {
		return nil, err
	}
	cfg.ServingPolicy = policy

	rpCfg, err := LoadReverseProxyConfig(f.ReverseProxyConfig)
	if err != nil {
		return nil, err
	}
	if f.EnableGithubProxy {
		for _, rule := range githubProxyRules {
			rpCfg.AddRule(proxy.DefaultHost, rule)
		}
	}
	for _, base := range f.AppendUpstreamURL {
		addUpstreamRule(rpCfg, base)
	}
	cfg.ReverseProxy = rpCfg

	return cfg, nil
}

// BuildCredentialTable maps each "user:pass" entry to the literal
// "Basic <base64(user:pass)>" header value AuthGate looks up. Entries
// missing either half are skipped. A weak password is a configuration
// error, not a silent acceptance.
func BuildCredentialTable(users []string) (proxy.CredentialTable, error) {
	table := make(proxy.CredentialTable, len(users))
	for _, raw := range users {
		username, password, ok := strings.Cut(raw, ":")
		if !ok || username == "" || password == "" {
			continue
		}
		if IsWeakToken(password) {
			return nil, fmt.Errorf("--users %q: password too weak", username)
		}
		header := "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
		table[header] = username
	}
	return table, nil
}

// BuildServingPolicy parses the --allow-serving-network CIDR list. An
// invalid CIDR is a configuration error, not silently skipped — static
// serving access control must not silently widen.
func BuildServingPolicy(prohibit bool, cidrs []string) (proxy.ServingPolicy, error) {
	policy := proxy.ServingPolicy{ProhibitServing: prohibit}
	if prohibit {
		return policy, nil
	}
	for _, raw := range cidrs {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return proxy.ServingPolicy{}, fmt.Errorf("invalid --allow-serving-network %q: %w", raw, err)
		}
		policy.AllowedNetworks = append(policy.AllowedNetworks, prefix)
	}
	return policy, nil
}

// reverseProxyFile is the on-disk YAML shape for --reverse-proxy-config-file.
// Top-level keys are host buckets (proxy.DefaultHost for the fallback
// bucket); each value is an ordered list of location rules.
type reverseProxyFile map[string][]locationRuleFile

type locationRuleFile struct {
	Location    string `yaml:"location"`
	UpstreamURL string `yaml:"upstream_url"`
	RequireAuth bool   `yaml:"require_auth"`
}

// LoadReverseProxyConfig reads and parses path, returning an empty config if
// path is blank (no reverse-proxy rules configured).
func LoadReverseProxyConfig(path string) (*proxy.ReverseProxyConfig, error) {
	cfg := proxy.NewReverseProxyConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reverse proxy config %q: %w", path, err)
	}
	var file reverseProxyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse reverse proxy config %q: %w", path, err)
	}
	for host, rules := range file {
		for _, rule := range rules {
			cfg.AddRule(host, proxy.LocationRule{
				PathPrefix:   rule.Location,
				UpstreamBase: rule.UpstreamURL,
				RequireAuth:  rule.RequireAuth,
			})
		}
	}
	return cfg, nil
}

// addUpstreamRule synthesizes the convenience rule --append-upstream-url
// describes: a request to /<upstreamURL>... on a host with no rule bucket of
// its own is proxied to upstreamURL, stripping the prefix.
func addUpstreamRule(cfg *proxy.ReverseProxyConfig, upstreamURL string) {
	cfg.AddRule(proxy.DefaultHost, proxy.LocationRule{
		PathPrefix:   "/" + upstreamURL,
		UpstreamBase: upstreamURL,
	})
}
