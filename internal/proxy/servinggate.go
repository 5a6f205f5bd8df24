package proxy

import "net/netip"

// ServingAllowed decides whether a static-file request from clientIP may
// proceed, per ServingPolicy: prohibit_serving always wins; otherwise an
// empty allow-list permits everyone, and a non-empty one requires
// membership in at least one network.
func ServingAllowed(policy ServingPolicy, clientIP netip.Addr) bool {
	if policy.ProhibitServing {
		return false
	}
	if len(policy.AllowedNetworks) == 0 {
		return true
	}
	canonical := clientIP.Unmap()
	for _, network := range policy.AllowedNetworks {
		if network.Contains(canonical) {
			return true
		}
	}
	return false
}
