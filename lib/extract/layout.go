// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package extract defines the on-disk layout shared by the unpacker
// and repacker. A firmware image becomes one flat directory:
//
//	00000000_header.bin        the 560-byte file header
//	<H>_head.bin               section header at file offset H
//	<P>_sect.bin               opaque payload at offset P = H + 256
//	<P>.dir, <P>_files/        ROMFS listing and members, instead of
//	                           the _sect.bin
//
// Offsets render as exactly 8 uppercase hex digits so that a plain
// lexicographic sort of the directory reproduces byte order.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	HeaderFile = "00000000_header.bin"

	HeadSuffix  = "_head.bin"
	SectSuffix  = "_sect.bin"
	DirSuffix   = ".dir"
	FilesSuffix = "_files"
)

// Name renders an offset-prefixed entry name, e.g. Name(0x230,
// HeadSuffix) == "00000230_head.bin".
func Name(offset uint32, suffix string) string {
	return fmt.Sprintf("%08X%s", offset, suffix)
}

// Offset recovers the offset from an entry name produced by Name.
func Offset(name string) (uint32, error) {
	if len(name) < 8 {
		return 0, errors.Errorf("No offset in name '%s'", name)
	}

	val, err := strconv.ParseUint(name[:8], 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "No offset in name '%s'", name)
	}

	return uint32(val), nil
}

// IsHead reports whether name is a section header entry.
func IsHead(name string) bool {
	return name != HeaderFile && strings.HasSuffix(name, HeadSuffix)
}
