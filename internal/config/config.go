// Package config defines the immutable configuration surface the core
// consumes. Nothing in this package parses flags or files: CLI parsing and
// TOML loading are external collaborators' responsibility (spec §1, §6.1).
// cmd/mediaserver builds a CoreConfig and hands it to the core unchanged.
package config

import "time"

// Directory describes one configured media root (spec §6.1).
type Directory struct {
	Path            string
	Recursive       bool
	Extensions      []string // nil means "inherit the default set"
	ExcludePatterns []string
}

// Network holds interface/SSDP tuning knobs.
type Network struct {
	SSDPPort                int
	SSDPFallbackPorts       []int
	Interface               string // "auto" | interface name | IPv4
	MulticastTTL            int
	AnnounceIntervalSeconds int
}

// CoreConfig is the complete, immutable input to the core. Every field has
// a corresponding default applied by Default(), mirroring spec §6.1.
type CoreConfig struct {
	ServerPort int
	ServerName string
	ServerUUID string

	Network Network

	Directories   []Directory
	ScanOnStartup bool
	DatabasePath  string
}

// Default returns the documented defaults from spec §6.1. Callers overlay
// whatever the external loader discovered on top of this.
func Default() CoreConfig {
	return CoreConfig{
		ServerPort: 8080,
		ServerName: "DLNA Server",
		Network: Network{
			SSDPPort:                1900,
			SSDPFallbackPorts:       []int{8082, 8083, 8084},
			Interface:               "auto",
			MulticastTTL:            4,
			AnnounceIntervalSeconds: 30,
		},
		ScanOnStartup: true,
		DatabasePath:  "mediaserver.db",
	}
}

// AnnounceInterval is Network.AnnounceIntervalSeconds as a time.Duration.
func (n Network) AnnounceInterval() time.Duration {
	return time.Duration(n.AnnounceIntervalSeconds) * time.Second
}

// MaxAge is the SSDP CACHE-CONTROL max-age: always 2x the announce interval.
func (n Network) MaxAge() int {
	return 2 * n.AnnounceIntervalSeconds
}
