// Package dms is the HTTP media gateway (spec §4.6, component C6): device
// and service description, the ContentDirectory/ConnectionManager SOAP
// dispatcher, GENA event subscriptions, and byte-range media streaming.
// Overall shape — a single http.ServeMux wrapped by an http.Server, SOAP
// dispatch keyed off the SOAPACTION header, SCPD served as static strings —
// is kept directly from
// the teacher's dlna/dms/dms.go (serveHTTP, serviceControlHandler,
// handleSCPDs, xmlMarshalOrPanic, marshalSOAPResponse), generalized from
// its ad hoc OnBrowseDirectChildren/OnBrowseMetadata callback pair to a
// MediaStore-backed contentDirectoryService.
package dms

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gomedia/dlnasrv/internal/config"
	"github.com/gomedia/dlnasrv/internal/mediastore"
	"github.com/gomedia/dlnasrv/internal/metrics"
)

// serverField is the HTTP Server response header value. The SSDP SERVER
// value is built separately by cmd/mediaserver and passed to dlna/ssdp.
var serverField = fmt.Sprintf("gomedia/1 UPnP/1.0 %s/%s", modelName, modelNumber)

// Server is the HTTP media gateway.
type Server struct {
	cfg        config.CoreConfig
	store      *mediastore.Store
	logger     log.Logger
	metrics    *metrics.Registry
	promReg    *prometheus.Registry
	deviceUUID string
	startTime  time.Time

	primaryIP atomic.Value // net.IP

	mux      *http.ServeMux
	listener net.Listener
	httpSrv  *http.Server

	subs *subscriptionTable
}

// New builds a Server. deviceUUID should be the persisted (or freshly
// generated) UUID from config; store backs every Browse/Search/stream.
func New(cfg config.CoreConfig, store *mediastore.Store, deviceUUID string, logger log.Logger, reg *metrics.Registry, promReg *prometheus.Registry) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		logger:     logger.WithNames("dms"),
		metrics:    reg,
		promReg:    promReg,
		deviceUUID: deviceUUID,
		startTime:  time.Now(),
		subs:       newSubscriptionTable(),
	}
	s.primaryIP.Store(net.IPv4(127, 0, 0, 1))
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// SetPrimaryIP updates the IP used to render LOCATION/URLBase, called by
// the wiring layer whenever NetworkProbe reports a change (spec §4.1).
func (s *Server) SetPrimaryIP(ip net.IP) {
	if ip == nil {
		return
	}
	s.primaryIP.Store(ip)
}

func (s *Server) PrimaryIP() net.IP {
	return s.primaryIP.Load().(net.IP)
}

// Start listens on cfg.ServerPort and serves until the returned server is
// closed via Shutdown. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ServerPort))
	if err != nil {
		return fmt.Errorf("dms: listen :%d: %w", s.cfg.ServerPort, err)
	}
	s.listener = ln
	s.cfg.ServerPort = ln.Addr().(*net.TCPAddr).Port

	s.httpSrv = &http.Server{
		Handler:      s,
		WriteTimeout: 30 * time.Second, // spec §5: "every outbound response has a write timeout"
	}
	go s.subs.runExpiryLoop()
	go s.runSystemUpdateIDNotifier()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Levelf(log.Warning, "dms: serve: %v", err)
		}
	}()
	s.logger.Levelf(log.Info, "dms: listening on %s", ln.Addr())
	return nil
}

// Port returns the bound TCP port (may differ from the configured one if
// it was 0).
func (s *Server) Port() int {
	return s.cfg.ServerPort
}

// Shutdown stops accepting new connections and drains in-flight ones up to
// the given grace period (spec §5 shutdown sequence).
func (s *Server) Shutdown(grace time.Duration) error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// ServeHTTP applies the teacher's ambient response headers (Ext, Server)
// before dispatching into the route mux, mirroring serveHTTP's wrapping
// behaviour in dlna/dms/dms.go.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Ext", "")
	w.Header().Set("Server", serverField)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc(descriptionPath, s.handleDescription)
	s.mux.HandleFunc(cdsSCPDPath, scpdHandler(contentDirectorySCPD))
	s.mux.HandleFunc(cmSCPDPath, scpdHandler(connectionManagerSCPD))
	s.mux.HandleFunc(cdsControlPath, s.handleContentDirectoryControl)
	s.mux.HandleFunc(cmControlPath, s.handleConnectionManagerControl)
	s.mux.HandleFunc(cdsEventSubPath, s.handleEventSub("ContentDirectory"))
	s.mux.HandleFunc(cmEventSubPath, s.handleEventSub("ConnectionManager"))
	s.mux.HandleFunc(mediaPathPrefix, s.handleMedia)
	s.mux.HandleFunc("/debug/pprof/", pprof.Index)
	if s.promReg != nil {
		s.mux.Handle("/debug/metrics", metrics.Handler(s.promReg))
	}
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	body := s.deviceDescriptionXML()
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	_, _ = w.Write(body)
}

func scpdHandler(doc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		_, _ = w.Write([]byte(doc))
	}
}
