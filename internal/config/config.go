// Package config loads the driver's array topology and server endpoint
// from an INI file, falling back to compiled-in defaults when no file
// is given (the environment-provided constants, made configurable).
package config

import (
	"fmt"

	"github.com/LeoZ100/RaidArrayDriver/internal/constants"
	"gopkg.in/ini.v1"
)

// Config describes the RAID array's topology and the driver's
// connection to the remote server.
type Config struct {
	ServerAddr    string
	DiskCount     int
	DiskBlocks    int
	BlockSize     int
	TrackBlocks   int
	MaxTagBlocks  int
	CacheCapacity int
	MaxTags       int
	LogLevel      string
}

// Default returns the compiled-in defaults from internal/constants.
func Default() *Config {
	return &Config{
		ServerAddr:    constants.DefaultServerAddr,
		DiskCount:     constants.DiskCount,
		DiskBlocks:    constants.DiskBlocks,
		BlockSize:     constants.BlockSize,
		TrackBlocks:   constants.TrackBlocks,
		MaxTagBlocks:  constants.MaxTagBlocks,
		CacheCapacity: constants.CacheCapacity,
		MaxTags:       constants.MaxTagsDefault,
		LogLevel:      "info",
	}
}

// Load reads an INI file at path and overlays any keys it sets onto the
// compiled-in defaults. The expected layout is:
//
//	[server]
//	addr = 127.0.0.1:9876
//
//	[array]
//	disk_count = 4
//	disk_blocks = 65536
//	block_size = 512
//	track_blocks = 64
//	max_tag_blocks = 256
//	cache_capacity = 256
//	max_tags = 64
//
//	[log]
//	level = info
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	if sec, err := file.GetSection("server"); err == nil {
		if key, err := sec.GetKey("addr"); err == nil {
			cfg.ServerAddr = key.String()
		}
	}

	if sec, err := file.GetSection("array"); err == nil {
		assignInt(sec, "disk_count", &cfg.DiskCount)
		assignInt(sec, "disk_blocks", &cfg.DiskBlocks)
		assignInt(sec, "block_size", &cfg.BlockSize)
		assignInt(sec, "track_blocks", &cfg.TrackBlocks)
		assignInt(sec, "max_tag_blocks", &cfg.MaxTagBlocks)
		assignInt(sec, "cache_capacity", &cfg.CacheCapacity)
		assignInt(sec, "max_tags", &cfg.MaxTags)
	}

	if sec, err := file.GetSection("log"); err == nil {
		if key, err := sec.GetKey("level"); err == nil {
			cfg.LogLevel = key.String()
		}
	}

	return cfg, nil
}

func assignInt(sec *ini.Section, name string, dst *int) {
	key, err := sec.GetKey(name)
	if err != nil {
		return
	}
	if v, err := key.Int(); err == nil {
		*dst = v
	}
}
