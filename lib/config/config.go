// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/usedbytes/amba-tools/lib/firmware"
)

// Config selects the per-camera-family format parameters. Everything
// has a default suitable for SJ8-class firmware, so no config file is
// needed for the common case.
type Config struct {
	RomfsType firmware.RomfsType `toml:"romfs_type"`

	// The section version pair is big-endian in the firmware lines
	// seen so far, but the vendor has flipped it before.
	VersionLittleEndian bool `toml:"version_little_endian"`
}

func Default() *Config {
	return &Config{
		RomfsType: firmware.SJ8ProType,
	}
}

// Load reads a TOML config file. A missing path returns the defaults.
func Load(file string) (*Config, error) {
	cfg := Default()
	if file == "" {
		return cfg, nil
	}

	if _, err := os.Stat(file); err != nil {
		return nil, errors.Wrap(err, "Opening config file")
	}

	_, err := toml.DecodeFile(file, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Parsing config file")
	}

	return cfg, nil
}
