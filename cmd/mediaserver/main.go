// Command mediaserver is the external collaborator that turns an
// internal/config.CoreConfig into a running DLNA MediaServer: it owns CLI
// parsing, TOML config loading/persistence, and the startup/shutdown
// sequence wiring C1-C6 together (SPEC_FULL.md §1, §6.1, §2 component map).
// None of this package's plumbing lives inside the core packages
// themselves, matching the teacher lineage's separation between rclone's
// cmd/ tree (cobra/pflag/toml-driven) and its fs/vfs core.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anacrolix/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gomedia/dlnasrv/dlna/dms"
	"github.com/gomedia/dlnasrv/dlna/ssdp"
	"github.com/gomedia/dlnasrv/internal/config"
	"github.com/gomedia/dlnasrv/internal/filewatcher"
	"github.com/gomedia/dlnasrv/internal/indexer"
	"github.com/gomedia/dlnasrv/internal/mediastore"
	"github.com/gomedia/dlnasrv/internal/metrics"
	"github.com/gomedia/dlnasrv/internal/netprobe"
)

var (
	configPath string
	dirFlags   []string
	probeAV    bool
)

func main() {
	root := &cobra.Command{
		Use:   "mediaserver",
		Short: "A DLNA/UPnP media server",
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringVar(&configPath, "config", "mediaserver.toml", "path to the TOML config file")
	flags.StringArrayVar(&dirFlags, "dir", nil, "media directory to serve (repeatable); overrides the config file's [[directory]] entries")
	flags.BoolVar(&probeAV, "probe-av", true, "probe audio/video files with ffprobe for duration and resolution")
	pflag.CommandLine = flags

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mediaserver:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.Default

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if len(dirFlags) > 0 {
		cfg.Directories = nil
		for _, d := range dirFlags {
			cfg.Directories = append(cfg.Directories, config.Directory{Path: d, Recursive: true})
		}
	}
	if len(cfg.Directories) == 0 {
		return fmt.Errorf("no media directories configured; pass --dir or add [[directory]] to %s", configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.store.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Levelf(log.Info, "mediaserver: shutting down")
	case <-ctx.Done():
	}

	cancel()
	app.shutdown()
	return nil
}

// application bundles every long-lived component so run() has one place to
// tear them all down (SPEC_FULL.md §5: "same long-lived task list, same
// ordering/cancellation rules").
type application struct {
	store      *mediastore.Store
	watchers   []*filewatcher.Watcher
	ssdpEngine *ssdp.Engine
	httpServer *dms.Server
}

func bootstrap(ctx context.Context, cfg config.CoreConfig, logger log.Logger) (*application, error) {
	store, err := mediastore.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("mediaserver: open store: %w", err)
	}

	reg, promReg := metrics.NewRegistry()

	watchers, events, err := startWatchers(cfg.Directories, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	idx := indexer.New(store, cfg.Directories, probeAV, logger)
	if cfg.ScanOnStartup {
		if err := idx.FullScan(ctx); err != nil {
			for _, w := range watchers {
				w.Close()
			}
			store.Close()
			return nil, fmt.Errorf("mediaserver: initial scan: %w", err)
		}
	}
	go idx.RunSteadyState(ctx, events)

	httpServer := dms.New(cfg, store, cfg.ServerUUID, logger, reg, promReg)
	if err := httpServer.Start(); err != nil {
		store.Close()
		return nil, fmt.Errorf("mediaserver: start http: %w", err)
	}
	cfg.ServerPort = httpServer.Port()

	engine := ssdp.New(ssdp.Config{
		DeviceUUID:       cfg.ServerUUID,
		Port:             cfg.Network.SSDPPort,
		FallbackPorts:    cfg.Network.SSDPFallbackPorts,
		MulticastTTL:     cfg.Network.MulticastTTL,
		AnnounceInterval: cfg.Network.AnnounceInterval(),
		MaxAge:           cfg.Network.MaxAge(),
		Server:           fmt.Sprintf("%s UPnP/1.0 %s/1", serverOSToken(), cfg.ServerName),
		LocationPath:     "/description.xml",
	}, logger, reg)

	locationFor := func(ip net.IP) string {
		return fmt.Sprintf("http://%s/description.xml", (&net.TCPAddr{IP: ip, Port: cfg.ServerPort}).String())
	}

	prober := netprobe.NewProber(10*time.Second, cfg.Network.Interface, logger)
	initial, err := netprobe.ListInterfaces()
	if err != nil {
		initial = nil
	}
	if err := engine.Start(ctx, initial, locationFor); err != nil {
		httpServer.Shutdown(time.Second)
		store.Close()
		return nil, fmt.Errorf("mediaserver: start ssdp: %w", err)
	}
	if primary := netprobe.ChoosePrimaryWithPreference(initial, cfg.Network.Interface); primary != nil {
		httpServer.SetPrimaryIP(primary.IPv4)
	}

	go prober.Run(ctx)
	go watchNetworkChanges(ctx, prober.C, engine, httpServer)

	return &application{
		store:      store,
		watchers:   watchers,
		ssdpEngine: engine,
		httpServer: httpServer,
	}, nil
}

// startWatchers creates one Watcher per configured directory and fans their
// Events channels into a single channel, since indexer.RunSteadyState
// consumes one stream (SPEC_FULL.md §2 keeps FileWatcher one-instance-per-root
// per spec.md's original model).
func startWatchers(dirs []config.Directory, logger log.Logger) ([]*filewatcher.Watcher, <-chan filewatcher.Event, error) {
	out := make(chan filewatcher.Event, 4096)
	watchers := make([]*filewatcher.Watcher, 0, len(dirs))
	for _, dir := range dirs {
		w, err := filewatcher.New(filewatcher.Options{
			Root:            dir.Path,
			Recursive:       dir.Recursive,
			Extensions:      dir.Extensions,
			ExcludePatterns: dir.ExcludePatterns,
		}, logger)
		if err != nil {
			for _, started := range watchers {
				started.Close()
			}
			return nil, nil, fmt.Errorf("mediaserver: watch %s: %w", dir.Path, err)
		}
		watchers = append(watchers, w)
		go w.Run(context.Background())
		go fanIn(w.Events, out)
	}
	return watchers, out, nil
}

func fanIn(in <-chan filewatcher.Event, out chan<- filewatcher.Event) {
	for ev := range in {
		out <- ev
	}
}

// watchNetworkChanges re-derives the SSDP candidate set and the HTTP
// server's advertised primary IP whenever NetworkProbe reports a change
// (spec §4.1 InterfaceChanged / §7 NetworkLoss).
func watchNetworkChanges(ctx context.Context, changes <-chan netprobe.Changed, engine *ssdp.Engine, httpServer *dms.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			engine.UpdateInterfaces(change.Candidate)
			if change.Primary != nil {
				httpServer.SetPrimaryIP(change.Primary.IPv4)
			}
		}
	}
}

func (a *application) shutdown() {
	a.ssdpEngine.Stop()
	_ = a.httpServer.Shutdown(5 * time.Second)
	for _, w := range a.watchers {
		w.Close()
	}
}

func serverOSToken() string {
	return "POSIX/1 DLNADOC/1.50"
}
