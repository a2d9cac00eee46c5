// Package netprobe watches the host's network interfaces and picks the one
// SSDP should advertise on (spec §4.1, component C1). The interface
// enumeration and filtering rules are grounded on navidrome's DLNA router
// (server/dlna/dlna.go: getActiveInterfaces, getLocalIP), generalized from
// "first usable interface" to a full Kind-classified, sorted candidate list
// with a background poll loop.
package netprobe

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/anacrolix/log"
)

// Kind classifies an interface for sort-preference purposes (spec §4.1).
type Kind int

const (
	KindOther Kind = iota
	KindVpn
	KindWifi
	KindEthernet
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "ethernet"
	case KindWifi:
		return "wifi"
	case KindVpn:
		return "vpn"
	default:
		return "other"
	}
}

// Interface is one candidate network interface with its first usable IPv4
// address.
type Interface struct {
	Name             string
	IPv4             net.IP
	Kind             Kind
	MulticastCapable bool
}

// Changed is emitted whenever the chosen primary interface changes,
// including the degenerate case where Primary becomes nil (spec §7
// NetworkLoss).
type Changed struct {
	Primary   *Interface
	Candidate []Interface
}

// ListInterfaces returns every up, non-loopback interface carrying a
// non-link-local IPv4 address, sorted by preference: Ethernet, then WiFi,
// then VPN, then everything else, ties broken by name. Loopback interfaces
// are kept only when no other interface qualifies, so single-host testing
// still works (spec §4.1).
func ListInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := collect(ifaces, false)
	if len(out) == 0 {
		out = collect(ifaces, true)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func collect(ifaces []net.Interface, allowLoopback bool) []Interface {
	var out []Interface
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		isLoopback := ifc.Flags&net.FlagLoopback != 0
		if isLoopback && !allowLoopback {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		ip := firstUsableIPv4(addrs)
		if ip == nil {
			continue
		}
		out = append(out, Interface{
			Name:             ifc.Name,
			IPv4:             ip,
			Kind:             classify(ifc.Name),
			MulticastCapable: ifc.Flags&net.FlagMulticast != 0,
		})
	}
	return out
}

func firstUsableIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLinkLocalUnicast() {
			continue
		}
		return ip4
	}
	return nil
}

// classify guesses an interface's Kind from its name, which is the
// portable signal Go exposes without platform-specific syscalls. Common
// prefixes across Linux/BSD/macOS/Windows naming schemes are covered;
// anything unrecognized is KindOther.
func classify(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "tun"), strings.HasPrefix(lower, "tap"),
		strings.HasPrefix(lower, "wg"), strings.HasPrefix(lower, "ppp"),
		strings.Contains(lower, "vpn"):
		return KindVpn
	case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "wi-fi"),
		strings.Contains(lower, "wifi"), strings.HasPrefix(lower, "ath"):
		return KindWifi
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"),
		strings.HasPrefix(lower, "eno"), strings.HasPrefix(lower, "enp"):
		return KindEthernet
	default:
		return KindOther
	}
}

// ChoosePrimary returns the first candidate, which ListInterfaces already
// sorts into preference order; nil if there are no candidates.
func ChoosePrimary(candidates []Interface) *Interface {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	return &c
}

// ChoosePrimaryWithPreference applies spec §6.1's network.interface
// selector ("auto" | explicit interface name | explicit IPv4) on top of
// ListInterfaces's default Ethernet/WiFi/VPN/Other ordering: "auto" or ""
// defers to ChoosePrimary, otherwise an exact name or IPv4 match is
// preferred if present among candidates, falling back to ChoosePrimary
// when the configured interface isn't currently up.
func ChoosePrimaryWithPreference(candidates []Interface, pref string) *Interface {
	if pref == "" || pref == "auto" {
		return ChoosePrimary(candidates)
	}
	for _, c := range candidates {
		if c.Name == pref || c.IPv4.String() == pref {
			chosen := c
			return &chosen
		}
	}
	return ChoosePrimary(candidates)
}

// Prober polls ListInterfaces on a fixed period and reports changes to the
// chosen primary on C.
type Prober struct {
	Interval   time.Duration
	Preference string // spec §6.1 network.interface: "auto" | name | IPv4
	C          chan Changed

	logger  log.Logger
	current *Interface
}

// NewProber builds a Prober with the given poll interval (spec §4.1: 10s)
// and interface preference (spec §6.1 network.interface).
func NewProber(interval time.Duration, preference string, logger log.Logger) *Prober {
	return &Prober{
		Interval:   interval,
		Preference: preference,
		C:          make(chan Changed, 1),
		logger:     logger.WithNames("netprobe"),
	}
}

// Run blocks, polling until ctx is done. The first poll emits when it finds
// a primary; if none is found, nothing is emitted until one appears.
func (p *Prober) Run(ctx context.Context) {
	p.pollOnce()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

func (p *Prober) pollOnce() {
	candidates, err := ListInterfaces()
	if err != nil {
		p.logger.Levelf(log.Warning, "netprobe: list interfaces: %v", err)
		candidates = nil
	}
	primary := ChoosePrimaryWithPreference(candidates, p.Preference)
	if sameInterface(primary, p.current) {
		return
	}
	p.current = primary
	select {
	case p.C <- Changed{Primary: primary, Candidate: candidates}:
	default:
		// Drop on an unread channel rather than block the poll loop; the
		// next tick's state supersedes a missed one anyway.
	}
}

func sameInterface(a, b *Interface) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && a.IPv4.Equal(b.IPv4)
}
