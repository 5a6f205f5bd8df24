package config

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Flags holds the raw CLI input before it is resolved into a Config.
type Flags struct {
	Ports                 []int
	Cert                  string
	Key                   string
	Users                 []string
	WebContentPath        string
	RefererKeywordsToSelf []string
	NeverAskForAuth       bool
	ProhibitServing       bool
	AllowServingNetwork   []string
	OverTLS               bool
	ReverseProxyConfig    string
	EnableGithubProxy     bool
	AppendUpstreamURL     []string
	LogDir                string
	LogFile               string
}

// ParseFlags parses args (excluding the program name) into Flags. Unknown
// flags or malformed values are reported as the returned error; ParseFlags
// never calls os.Exit itself.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	cmd := &cobra.Command{
		Use:           "multiproxy",
		Short:         "multi-mode HTTP proxy: CONNECT tunnel, forward proxy, reverse proxy, static files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(*cobra.Command, []string) error { return nil },
	}

	flags := cmd.Flags()
	flags.IntSliceVar(&f.Ports, "port", []int{3128}, "listen port (repeatable)")
	flags.StringVar(&f.Cert, "cert", "", "TLS certificate file")
	flags.StringVar(&f.Key, "key", "", "TLS key file")
	flags.StringArrayVar(&f.Users, "users", nil, "user:pass credential (repeatable)")
	flags.StringVar(&f.WebContentPath, "web-content-path", "", "directory served for static-file requests")
	flags.StringArrayVar(&f.RefererKeywordsToSelf, "referer-keywords-to-self", nil, "Referer substrings considered self-referral (repeatable)")
	flags.BoolVar(&f.NeverAskForAuth, "never-ask-for-auth", false, "drop unauthenticated forward-proxy requests instead of challenging")
	flags.BoolVar(&f.ProhibitServing, "prohibit-serving", false, "refuse all static-file requests")
	flags.StringArrayVar(&f.AllowServingNetwork, "allow-serving-network", nil, "CIDR allowed to reach static files (repeatable)")
	flags.BoolVar(&f.OverTLS, "over-tls", false, "terminate TLS on the listener using --cert/--key")
	flags.StringVar(&f.ReverseProxyConfig, "reverse-proxy-config-file", "", "YAML file describing ReverseProxyConfig")
	flags.BoolVar(&f.EnableGithubProxy, "enable-github-proxy", false, "synthesize DEFAULT_HOST rules under /github/ proxying GitHub release/raw/archive/object URLs")
	flags.StringArrayVar(&f.AppendUpstreamURL, "append-upstream-url", nil, "additional upstream base URL synthesized as a DEFAULT_HOST rule (repeatable)")
	flags.StringVar(&f.LogDir, "log-dir", "", "directory for the access log file")
	flags.StringVar(&f.LogFile, "log-file", "access.log", "access log file name within --log-dir")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return f, nil
}
