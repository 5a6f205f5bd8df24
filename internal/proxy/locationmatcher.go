package proxy

import "strings"

// MatchLocation consults the host's bucket in cfg, falling back to
// DefaultHost when no exact host match exists. Within a bucket, rules are
// compared in insertion order and the first whose PathPrefix is a prefix of
// path wins — not longest-match. path is compared as received; callers must
// not percent-decode it first.
func MatchLocation(cfg *ReverseProxyConfig, host RequestDomain, path string) (LocationRule, bool) {
	if cfg == nil {
		return LocationRule{}, false
	}
	rules, ok := cfg.Hosts[string(host)]
	if !ok {
		rules, ok = cfg.Hosts[DefaultHost]
		if !ok {
			return LocationRule{}, false
		}
	}
	for _, rule := range rules {
		if strings.HasPrefix(path, rule.PathPrefix) {
			return rule, true
		}
	}
	return LocationRule{}, false
}
