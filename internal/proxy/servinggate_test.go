package proxy

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServingAllowedProhibited(t *testing.T) {
	policy := ServingPolicy{ProhibitServing: true}
	assert.False(t, ServingAllowed(policy, netip.MustParseAddr("1.2.3.4")))
}

func TestServingAllowedEmptyAllowListPermitsAll(t *testing.T) {
	policy := ServingPolicy{}
	assert.True(t, ServingAllowed(policy, netip.MustParseAddr("203.0.113.5")))
}

func TestServingAllowedMembership(t *testing.T) {
	policy := ServingPolicy{AllowedNetworks: []CIDRNetwork{netip.MustParsePrefix("10.0.0.0/8")}}
	assert.True(t, ServingAllowed(policy, netip.MustParseAddr("10.1.2.3")))
	assert.False(t, ServingAllowed(policy, netip.MustParseAddr("192.168.1.1")))
}

func TestServingAllowedUnmapsV4InV6(t *testing.T) {
	policy := ServingPolicy{AllowedNetworks: []CIDRNetwork{netip.MustParsePrefix("10.0.0.0/8")}}
	mapped := netip.MustParseAddr("::ffff:10.1.2.3")
	assert.True(t, ServingAllowed(policy, mapped))
}
