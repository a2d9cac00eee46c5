package netprobe

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCommonPrefixes(t *testing.T) {
	assert.Equal(t, KindEthernet, classify("eth0"))
	assert.Equal(t, KindEthernet, classify("enp3s0"))
	assert.Equal(t, KindWifi, classify("wlan0"))
	assert.Equal(t, KindVpn, classify("tun0"))
	assert.Equal(t, KindVpn, classify("wg0"))
	assert.Equal(t, KindOther, classify("docker0"))
}

func TestChoosePrimaryPrefersFirstSortedCandidate(t *testing.T) {
	candidates := []Interface{
		{Name: "docker0", Kind: KindOther},
		{Name: "eth0", Kind: KindEthernet},
		{Name: "wlan0", Kind: KindWifi},
	}
	// ListInterfaces is what sorts; ChoosePrimary trusts its ordering.
	primary := ChoosePrimary(candidates)
	assert.Equal(t, "docker0", primary.Name)
}

func TestFirstUsableIPv4SkipsLinkLocal(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("169.254.1.1"), Mask: net.CIDRMask(16, 32)},
		&net.IPNet{IP: net.ParseIP("192.168.1.50"), Mask: net.CIDRMask(24, 32)},
	}
	ip := firstUsableIPv4(addrs)
	assert.Equal(t, "192.168.1.50", ip.String())
}

func TestChoosePrimaryWithPreferenceMatchesName(t *testing.T) {
	candidates := []Interface{
		{Name: "eth0", Kind: KindEthernet, IPv4: net.ParseIP("10.0.0.1")},
		{Name: "wlan0", Kind: KindWifi, IPv4: net.ParseIP("10.0.0.2")},
	}
	primary := ChoosePrimaryWithPreference(candidates, "wlan0")
	assert.Equal(t, "wlan0", primary.Name)
}

func TestChoosePrimaryWithPreferenceFallsBackWhenUnmatched(t *testing.T) {
	candidates := []Interface{
		{Name: "eth0", Kind: KindEthernet, IPv4: net.ParseIP("10.0.0.1")},
	}
	primary := ChoosePrimaryWithPreference(candidates, "nonexistent0")
	assert.Equal(t, "eth0", primary.Name)
}

func TestChoosePrimaryWithPreferenceAuto(t *testing.T) {
	candidates := []Interface{
		{Name: "eth0", Kind: KindEthernet, IPv4: net.ParseIP("10.0.0.1")},
	}
	primary := ChoosePrimaryWithPreference(candidates, "auto")
	assert.Equal(t, "eth0", primary.Name)
}

func TestSameInterfaceHandlesNils(t *testing.T) {
	a := &Interface{Name: "eth0", IPv4: net.ParseIP("10.0.0.1")}
	assert.True(t, sameInterface(nil, nil))
	assert.False(t, sameInterface(a, nil))
	b := &Interface{Name: "eth0", IPv4: net.ParseIP("10.0.0.1")}
	assert.True(t, sameInterface(a, b))
}
