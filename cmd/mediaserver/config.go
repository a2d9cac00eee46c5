package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/gomedia/dlnasrv/internal/config"
)

// fileConfig is the on-disk TOML shape, a thin mirror of config.CoreConfig
// with the UUID broken out so it can be read and rewritten independently
// (spec §6.1: "persisting a generated server.uuid back to that file").
// Grounded on the teacher lineage's practice (rclone's own config file is a
// flat key=value store rewritten in place after first run) of treating the
// config file as both input and a place to persist generated identifiers.
type fileConfig struct {
	ServerPort int    `toml:"server_port"`
	ServerName string `toml:"server_name"`
	ServerUUID string `toml:"server_uuid"`

	SSDPPort          int      `toml:"ssdp_port"`
	SSDPFallbackPorts []int    `toml:"ssdp_fallback_ports"`
	Interface         string   `toml:"interface"`
	MulticastTTL      int      `toml:"multicast_ttl"`
	AnnounceInterval  int      `toml:"announce_interval_seconds"`

	Directories   []fileDirectory `toml:"directory"`
	ScanOnStartup *bool           `toml:"scan_on_startup"`
	DatabasePath  string          `toml:"database_path"`
}

type fileDirectory struct {
	Path            string   `toml:"path"`
	Recursive       bool     `toml:"recursive"`
	Extensions      []string `toml:"extensions"`
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// loadConfig reads path (if it exists) and overlays it onto config.Default(),
// generating and persisting a server_uuid on first run.
func loadConfig(path string) (config.CoreConfig, error) {
	cfg := config.Default()

	var fc fileConfig
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	} else if _, err := toml.DecodeFile(path, &fc); err != nil {
		return cfg, fmt.Errorf("mediaserver: parse config %s: %w", path, err)
	}

	applyFileConfig(&cfg, fc)

	if cfg.ServerUUID == "" {
		cfg.ServerUUID = uuid.NewString()
	}

	if !existed || fc.ServerUUID != cfg.ServerUUID {
		if err := persistConfig(path, cfg); err != nil {
			return cfg, fmt.Errorf("mediaserver: persist config %s: %w", path, err)
		}
	}
	return cfg, nil
}

func applyFileConfig(cfg *config.CoreConfig, fc fileConfig) {
	if fc.ServerPort != 0 {
		cfg.ServerPort = fc.ServerPort
	}
	if fc.ServerName != "" {
		cfg.ServerName = fc.ServerName
	}
	if fc.ServerUUID != "" {
		cfg.ServerUUID = fc.ServerUUID
	}
	if fc.SSDPPort != 0 {
		cfg.Network.SSDPPort = fc.SSDPPort
	}
	if len(fc.SSDPFallbackPorts) > 0 {
		cfg.Network.SSDPFallbackPorts = fc.SSDPFallbackPorts
	}
	if fc.Interface != "" {
		cfg.Network.Interface = fc.Interface
	}
	if fc.MulticastTTL != 0 {
		cfg.Network.MulticastTTL = fc.MulticastTTL
	}
	if fc.AnnounceInterval != 0 {
		cfg.Network.AnnounceIntervalSeconds = fc.AnnounceInterval
	}
	if len(fc.Directories) > 0 {
		dirs := make([]config.Directory, 0, len(fc.Directories))
		for _, d := range fc.Directories {
			dirs = append(dirs, config.Directory{
				Path:            d.Path,
				Recursive:       d.Recursive,
				Extensions:      d.Extensions,
				ExcludePatterns: d.ExcludePatterns,
			})
		}
		cfg.Directories = dirs
	}
	if fc.ScanOnStartup != nil {
		cfg.ScanOnStartup = *fc.ScanOnStartup
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
}

func persistConfig(path string, cfg config.CoreConfig) error {
	fc := fileConfig{
		ServerPort:        cfg.ServerPort,
		ServerName:        cfg.ServerName,
		ServerUUID:        cfg.ServerUUID,
		SSDPPort:          cfg.Network.SSDPPort,
		SSDPFallbackPorts: cfg.Network.SSDPFallbackPorts,
		Interface:         cfg.Network.Interface,
		MulticastTTL:      cfg.Network.MulticastTTL,
		AnnounceInterval:  cfg.Network.AnnounceIntervalSeconds,
		ScanOnStartup:     &cfg.ScanOnStartup,
		DatabasePath:      cfg.DatabasePath,
	}
	for _, d := range cfg.Directories {
		fc.Directories = append(fc.Directories, fileDirectory{
			Path:            d.Path,
			Recursive:       d.Recursive,
			Extensions:      d.Extensions,
			ExcludePatterns: d.ExcludePatterns,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(fc)
}
