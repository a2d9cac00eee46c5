// Package ssdp implements the SSDP discovery engine (spec §4.5, component
// C5): a UDP multicast listener that answers M-SEARCH requests and
// periodically advertises ssdp:alive/ssdp:byebye NOTIFYs. Socket plumbing
// (multicast join per interface via golang.org/x/net/ipv4, SO_REUSEADDR/
// SO_REUSEPORT via golang.org/x/sys) is grounded on
// other_examples/33230012_gcastel-gossdp__ssdp.go.go's createSocket, the
// pack's only complete SSDP implementation, adapted from its
// code.google.com/p/go.net/ipv4 import to golang.org/x/net/ipv4 (already a
// teacher dependency, skunkie-dms/go.mod) and generalized from gossdp's
// single combined socket to the three roles spec'd: multicast listener,
// per-interface announcer, transient unicast responder.
package ssdp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/anacrolix/log"

	"github.com/gomedia/dlnasrv/internal/metrics"
	"github.com/gomedia/dlnasrv/internal/netprobe"
)

// State is the SsdpEngine lifecycle (spec §4.5 "State machine").
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateAdvertising
	StateSuspended
	StateStopping
)

// Config configures one Engine.
type Config struct {
	DeviceUUID        string
	Port              int
	FallbackPorts     []int
	MulticastTTL      int
	AnnounceInterval  time.Duration
	MaxAge            int
	Server            string // SERVER header, e.g. "Linux/3.4 DLNADOC/1.50 UPnP/1.0 dlnasrv/1"
	LocationPath      string // e.g. "/description.xml"
}

// Engine is the running SSDP discovery state machine.
type Engine struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics.Registry

	mu         sync.Mutex
	state      State
	actualPort int
	interfaces []netprobe.Interface
	conn       *net.UDPConn
	pconn      *ipv4.PacketConn
	joined     map[string]bool
	locationFor locationFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine; call Start to begin advertising.
func New(cfg Config, logger log.Logger, reg *metrics.Registry) *Engine {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 2 * int(cfg.AnnounceInterval/time.Second)
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.WithNames("ssdp"),
		metrics: reg,
		joined:  make(map[string]bool),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Port returns the UDP port the engine ended up bound to, after Start's
// fallback logic has run (spec §4.5 "Port fallback").
func (e *Engine) Port() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actualPort
}

// Start binds the multicast listener, trying Config.Port then each of
// Config.FallbackPorts in order (spec §4.5 "Port fallback"), joins the
// group on every multicast-capable interface in ifaces, and begins the
// listen + periodic-announce loops. It returns once the socket is bound;
// the loops run in the background until Stop.
func (e *Engine) Start(ctx context.Context, ifaces []netprobe.Interface, locationFor func(ip net.IP) string) error {
	e.mu.Lock()
	e.state = StateStarting
	e.mu.Unlock()

	ports := append([]int{e.cfg.Port}, e.cfg.FallbackPorts...)
	var lastErr error
	for _, port := range ports {
		conn, err := bindMulticastListener(port)
		if err != nil {
			lastErr = err
			e.logger.Levelf(log.Warning, "ssdp: bind port %d failed: %v", port, err)
			continue
		}
		e.mu.Lock()
		e.conn = conn
		e.pconn = ipv4.NewPacketConn(conn)
		e.actualPort = port
		e.mu.Unlock()
		if port != DefaultPort {
			e.logger.Levelf(log.Warning, "ssdp: listening on fallback port %d, strict SSDP clients may not discover this server", port)
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return fmt.Errorf("ssdp: could not bind any configured port: %w", lastErr)
	}

	_ = e.pconn.SetMulticastTTL(e.cfg.MulticastTTL)
	e.UpdateInterfaces(ifaces)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.locationFor = locationFor

	e.mu.Lock()
	e.state = StateAdvertising
	e.mu.Unlock()

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.listenLoop(runCtx) }()
	go func() { defer e.wg.Done(); e.announceLoop(runCtx) }()
	e.announceBurst(ctx, "ssdp:alive")
	return nil
}

// locationFor resolves the LOCATION URL for a given interface's IP.
// (declared alongside Engine's other fields via a plain struct field,
// kept non-exported since it's wired once at Start.)
type locationFunc = func(ip net.IP) string

func bindMulticastListener(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: controlReusePort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// UpdateInterfaces updates which interfaces the multicast group is joined
// on and which interfaces get per-interface NOTIFY announcements. Called
// both at Start and whenever NetworkProbe reports a change (spec §4.1
// InterfaceChanged triggers SSDP re-announce). An empty ifaces list
// suspends advertising (spec §7 NetworkLoss).
func (e *Engine) UpdateInterfaces(ifaces []netprobe.Interface) {
	e.mu.Lock()
	e.interfaces = ifaces
	wasSuspended := e.state == StateSuspended
	if len(ifaces) == 0 {
		e.state = StateSuspended
	} else if wasSuspended {
		e.state = StateAdvertising
	}
	pconn := e.pconn
	joined := e.joined
	e.mu.Unlock()

	if pconn == nil {
		return
	}
	live := make(map[string]bool, len(ifaces))
	group := &net.UDPAddr{IP: net.ParseIP(MulticastAddr)}
	for _, ifc := range ifaces {
		if !ifc.MulticastCapable {
			continue
		}
		live[ifc.Name] = true
		if joined[ifc.Name] {
			continue
		}
		netIfc, err := net.InterfaceByName(ifc.Name)
		if err != nil {
			continue
		}
		if err := pconn.JoinGroup(netIfc, group); err != nil {
			e.logger.Levelf(log.Warning, "ssdp: join group on %s: %v", ifc.Name, err)
			continue
		}
		joined[ifc.Name] = true
	}
	for name := range joined {
		if !live[name] {
			if netIfc, err := net.InterfaceByName(name); err == nil {
				_ = pconn.LeaveGroup(netIfc, group)
			}
			delete(joined, name)
		}
	}

	if wasSuspended && len(ifaces) > 0 {
		e.announceBurst(context.Background(), "ssdp:alive")
	}
}

// Stop sends ssdp:byebye NOTIFYs (best-effort, bounded to 1s per spec
// §4.5 "On shutdown") and tears down the listener.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.state = StateStopping
	cancel := e.cancel
	e.mu.Unlock()

	byeCtx, byeCancel := context.WithTimeout(context.Background(), 1*time.Second)
	e.announceBurst(byeCtx, "ssdp:byebye")
	byeCancel()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.mu.Lock()
	if e.conn != nil {
		e.conn.Close()
	}
	e.state = StateStopped
	e.mu.Unlock()
}

func (e *Engine) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.announceBurst(ctx, "ssdp:alive")
		}
	}
}

// announceBurst sends every NT, three times each with 100-200ms spacing,
// on every currently-live interface (spec §4.5 "Protocol messages to
// emit"). Bursts across interfaces may interleave (spec §5); within one
// interface they are ordered.
func (e *Engine) announceBurst(ctx context.Context, nts string) {
	e.mu.Lock()
	ifaces := append([]netprobe.Interface(nil), e.interfaces...)
	locFor := e.locationFor
	e.mu.Unlock()
	if locFor == nil {
		return
	}

	host := fmt.Sprintf("%s:%d", MulticastAddr, e.Port())
	notificationTypes := NotificationTypes(e.cfg.DeviceUUID)

	var wg sync.WaitGroup
	for _, ifc := range ifaces {
		ifc := ifc
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.announceOnInterface(ctx, ifc, host, notificationTypes, nts, locFor(ifc.IPv4))
		}()
	}
	wg.Wait()
}

func (e *Engine) announceOnInterface(ctx context.Context, ifc netprobe.Interface, host string, nts []string, nType, location string) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ifc.IPv4, Port: 0})
	if err != nil {
		e.logger.Levelf(log.Debug, "ssdp: announcer socket on %s: %v", ifc.Name, err)
		return
	}
	defer conn.Close()
	dst := &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: e.Port()}

	for _, nt := range nts {
		msg := buildNotify(host, nt, e.cfg.DeviceUUID, nType, location, e.cfg.Server, e.cfg.MaxAge)
		for i := 0; i < 3; i++ {
			if ctx.Err() != nil {
				return
			}
			if _, err := conn.WriteToUDP(msg, dst); err != nil {
				e.logger.Levelf(log.Debug, "ssdp: notify on %s: %v", ifc.Name, err)
			} else if e.metrics != nil && nType == "ssdp:alive" {
				e.metrics.SsdpAnnouncesSent.Inc()
			}
			sleep(ctx, jitter(100, 200))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func jitter(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
}

// listenLoop reads inbound datagrams on the multicast listener socket and
// dispatches M-SEARCH requests to the responder (spec §4.5 "M-SEARCH
// responder"). NOTIFY datagrams from other devices are ignored: this
// server is a content directory, not an aggregator.
func (e *Engine) listenLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // read timeout, or a transient error; loop and recheck ctx
		}
		raw := append([]byte(nil), buf[:n]...)
		go e.handleDatagram(ctx, raw, from)
	}
}

func (e *Engine) handleDatagram(ctx context.Context, raw []byte, from *net.UDPAddr) {
	req, ok := parseSearchRequest(raw)
	if !ok {
		return
	}
	targets := matchingTargets(req.ST, e.cfg.DeviceUUID, NotificationTypes(e.cfg.DeviceUUID))
	if len(targets) == 0 {
		return
	}
	e.mu.Lock()
	locFor := e.locationFor
	ifaces := append([]netprobe.Interface(nil), e.interfaces...)
	e.mu.Unlock()
	if locFor == nil || len(ifaces) == 0 {
		return
	}
	location := locFor(ifaces[0].IPv4)

	delay := time.Duration(rand.Intn(req.MX+1)) * time.Second
	sleep(ctx, delay)

	for _, st := range targets {
		resp := buildSearchResponse(from.String(), st, e.cfg.DeviceUUID, location, e.cfg.Server, e.cfg.MaxAge)
		e.respond(resp, from)
	}
}

// respond opens a transient, ephemeral-port unicast socket for exactly one
// M-SEARCH response, per spec §4.5.
func (e *Engine) respond(msg []byte, to *net.UDPAddr) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		e.logger.Levelf(log.Debug, "ssdp: response socket: %v", err)
		return
	}
	defer conn.Close()
	if _, err := conn.WriteToUDP(msg, to); err != nil {
		e.logger.Levelf(log.Debug, "ssdp: writing M-SEARCH response to %s: %v", to, err)
	}
}
