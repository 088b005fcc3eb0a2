// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"encoding/binary"
	"testing"

	"github.com/usedbytes/amba-tools/lib/checksum"
)

func testSectionHeader(t *testing.T) []byte {
	t.Helper()

	raw := make([]byte, SectionHeaderLen)
	binary.LittleEndian.PutUint32(raw[sectionCRCOffset:], 0x11111111)
	// v2.7, big-endian u16 pair
	binary.BigEndian.PutUint16(raw[sectionVersionOffset:], 2)
	binary.BigEndian.PutUint16(raw[sectionVersionOffset+2:], 7)
	// 2019-06-14
	raw[sectionDateOffset] = 14
	raw[sectionDateOffset+1] = 6
	binary.LittleEndian.PutUint16(raw[sectionDateOffset+2:], 2019)
	binary.LittleEndian.PutUint32(raw[sectionLengthOffset:], 1024)
	binary.LittleEndian.PutUint32(raw[sectionMemoryOffset:], 0xa0000000)
	binary.LittleEndian.PutUint32(raw[sectionFlagsOffset:], 0x00000002)
	binary.LittleEndian.PutUint32(raw[SectionMagicOffset:], SectionMagic)

	return raw
}

func TestSectionHeaderParse(t *testing.T) {
	hdr, err := NewSectionHeader(testSectionHeader(t), false)
	if err != nil {
		t.Fatal(err)
	}

	if hdr.CRC != 0x11111111 {
		t.Fatalf("crc: got 0x%08x", hdr.CRC)
	}
	if hdr.Version.String() != "v2.7" {
		t.Fatalf("version: got %s", hdr.Version)
	}
	if hdr.Date.String() != "2019-06-14" {
		t.Fatalf("date: got %s", hdr.Date)
	}
	if hdr.Length != 1024 {
		t.Fatalf("length: got %d", hdr.Length)
	}
	if hdr.Memory != 0xa0000000 || hdr.Flags != 2 {
		t.Fatalf("memory/flags: got 0x%08x/0x%08x", hdr.Memory, hdr.Flags)
	}
}

func TestSectionHeaderLEVersion(t *testing.T) {
	raw := testSectionHeader(t)
	binary.LittleEndian.PutUint16(raw[sectionVersionOffset:], 3)
	binary.LittleEndian.PutUint16(raw[sectionVersionOffset+2:], 14)

	hdr, err := NewSectionHeader(raw, true)
	if err != nil {
		t.Fatal(err)
	}

	if hdr.Version.String() != "v3.14" {
		t.Fatalf("version: got %s", hdr.Version)
	}
}

func TestSectionHeaderBadMagic(t *testing.T) {
	raw := testSectionHeader(t)
	raw[SectionMagicOffset] ^= 0xff

	_, err := NewSectionHeader(raw, false)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestPatchSectionHeader(t *testing.T) {
	raw := testSectionHeader(t)
	payload := []byte("new payload bytes")

	err := PatchSectionHeader(raw, payload)
	if err != nil {
		t.Fatal(err)
	}

	hdr, err := NewSectionHeader(raw, false)
	if err != nil {
		t.Fatal(err)
	}

	if hdr.CRC != checksum.CRC32(payload, 0) {
		t.Fatalf("crc not patched: 0x%08x", hdr.CRC)
	}
	if hdr.Length != uint32(len(payload)) {
		t.Fatalf("length not patched: %d", hdr.Length)
	}

	// Only those two fields may change
	if hdr.Memory != 0xa0000000 || hdr.Flags != 2 {
		t.Fatal("opaque fields modified")
	}
	if hdr.Version.String() != "v2.7" || hdr.Date.String() != "2019-06-14" {
		t.Fatal("version/date modified")
	}
}
