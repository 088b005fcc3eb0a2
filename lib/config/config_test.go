// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/usedbytes/amba-tools/lib/firmware"
)

func TestParse(t *testing.T) {
	var tomlData = `
romfs_type = "sj10pro"
version_little_endian = true
`

	cfg := Default()
	_, err := toml.Decode(tomlData, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RomfsType != firmware.SJ10ProType {
		t.Fatalf("romfs_type: got %s", cfg.RomfsType)
	}

	if cfg.RomfsType.Dialect() != firmware.SJ10Pro {
		t.Fatalf("dialect: got %v", cfg.RomfsType.Dialect())
	}

	if !cfg.VersionLittleEndian {
		t.Fatal("version_little_endian not set")
	}
}

func TestBadRomfsType(t *testing.T) {
	var tomlData = `
romfs_type = "sj7star"
`

	cfg := Default()
	_, err := toml.Decode(tomlData, cfg)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.RomfsType.Dialect() != firmware.SJ8Pro {
		t.Fatalf("dialect: got %v", cfg.RomfsType.Dialect())
	}

	if cfg.VersionLittleEndian {
		t.Fatal("version_little_endian should default to false")
	}
}
