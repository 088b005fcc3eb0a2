// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"fmt"
)

// Dialect captures the two constants that differ between the ROMFS
// layouts found in SJ8-class and SJ10-class firmware: the size the
// partition header is padded to, and the width of the filename field
// in a directory entry.
type Dialect struct {
	HeaderLen   int
	FilenameLen int
}

var (
	SJ8Pro  = Dialect{HeaderLen: 2048 * 3, FilenameLen: 64}
	SJ10Pro = Dialect{HeaderLen: 2048 * 68, FilenameLen: 256}
)

// entryLen is the size of one directory entry: the filename field
// plus length, offset and CRC words.
func (d Dialect) entryLen() int {
	return d.FilenameLen + 12
}

// RomfsType names a Dialect for configuration files and flags.
type RomfsType string

const (
	SJ8ProType  RomfsType = "sj8pro"
	SJ10ProType           = "sj10pro"
)

func (rt *RomfsType) String() string {
	return string(*rt)
}

func (rt *RomfsType) UnmarshalText(text []byte) error {
	str := RomfsType(text)
	switch str {
	case SJ8ProType:
		*rt = SJ8ProType
	case SJ10ProType:
		*rt = SJ10ProType
	default:
		return fmt.Errorf("unrecognised romfs type: %s", str)
	}

	return nil
}

func (rt *RomfsType) MarshalText() ([]byte, error) {
	return []byte(string(*rt)), nil
}

func (rt RomfsType) Dialect() Dialect {
	switch rt {
	case SJ10ProType:
		return SJ10Pro
	default:
		return SJ8Pro
	}
}
