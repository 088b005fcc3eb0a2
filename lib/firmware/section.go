// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/usedbytes/amba-tools/lib/checksum"
)

const (
	// SectionHeaderLen is the size of every section header.
	SectionHeaderLen = 256

	// SectionMagic are the bytes 90 EB 24 A3, read little-endian.
	// It sits at offset 24 of the section header, so a magic hit at
	// file offset m means a header starting at m - SectionMagicOffset.
	SectionMagic       uint32 = 0xa324eb90
	SectionMagicOffset        = 24

	sectionCRCOffset     = 0
	sectionVersionOffset = 4
	sectionDateOffset    = 8
	sectionLengthOffset  = 12
	sectionMemoryOffset  = 16
	sectionFlagsOffset   = 20
)

type SectionVersion struct {
	major, minor uint16
}

func (sv SectionVersion) String() string {
	return fmt.Sprintf("v%d.%d", sv.major, sv.minor)
}

type SectionDate struct {
	day, month uint8
	year       uint16
}

func (sd SectionDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", sd.year, sd.month, sd.day)
}

type SectionHeader struct {
	CRC     uint32
	Version SectionVersion
	Date    SectionDate
	Length  uint32
	// Memory and Flags aren't understood; they round-trip verbatim.
	Memory uint32
	Flags  uint32

	rawData []byte
}

// NewSectionHeader parses a 256-byte section header. The version pair
// is big-endian in every sample seen so far, but the order is
// selectable because the vendor has flipped it between firmware
// lines.
func NewSectionHeader(rawData []byte, leVersion bool) (*SectionHeader, error) {
	if len(rawData) < SectionHeaderLen {
		return nil, errors.Errorf("Short section header: %d bytes", len(rawData))
	}
	rawData = rawData[:SectionHeaderLen]

	magic := binary.LittleEndian.Uint32(rawData[SectionMagicOffset:])
	if magic != SectionMagic {
		return nil, errors.Errorf("Bad section magic: 0x%08x", magic)
	}

	hdr := &SectionHeader{
		CRC:     binary.LittleEndian.Uint32(rawData[sectionCRCOffset:]),
		Length:  binary.LittleEndian.Uint32(rawData[sectionLengthOffset:]),
		Memory:  binary.LittleEndian.Uint32(rawData[sectionMemoryOffset:]),
		Flags:   binary.LittleEndian.Uint32(rawData[sectionFlagsOffset:]),
		rawData: rawData,
	}

	if leVersion {
		hdr.Version = SectionVersion{
			major: binary.LittleEndian.Uint16(rawData[sectionVersionOffset:]),
			minor: binary.LittleEndian.Uint16(rawData[sectionVersionOffset+2:]),
		}
	} else {
		hdr.Version = SectionVersion{
			major: binary.BigEndian.Uint16(rawData[sectionVersionOffset:]),
			minor: binary.BigEndian.Uint16(rawData[sectionVersionOffset+2:]),
		}
	}

	hdr.Date = SectionDate{
		day:   rawData[sectionDateOffset],
		month: rawData[sectionDateOffset+1],
		year:  binary.LittleEndian.Uint16(rawData[sectionDateOffset+2:]),
	}

	return hdr, nil
}

func (sh *SectionHeader) RawData() []byte {
	return sh.rawData
}

func (sh SectionHeader) String() string {
	str := ""
	str += fmt.Sprintf("Version: %s\n", sh.Version)
	str += fmt.Sprintf("Date:    %s\n", sh.Date)
	str += fmt.Sprintf("Length:  %d\n", sh.Length)
	str += fmt.Sprintf("CRC:     0x%08x", sh.CRC)
	return str
}

// PatchSectionHeader updates the two fields the repacker owns: the
// payload CRC and the payload length. All other bytes are preserved.
func PatchSectionHeader(rawHdr []byte, payload []byte) error {
	if len(rawHdr) < SectionHeaderLen {
		return errors.Errorf("Short section header: %d bytes", len(rawHdr))
	}

	binary.LittleEndian.PutUint32(rawHdr[sectionCRCOffset:], checksum.CRC32(payload, 0))
	binary.LittleEndian.PutUint32(rawHdr[sectionLengthOffset:], uint32(len(payload)))

	return nil
}
