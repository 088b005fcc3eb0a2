// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"encoding/binary"
	"testing"
)

func testHeader(t *testing.T, entries []DirEntry) []byte {
	t.Helper()

	raw := make([]byte, HeaderLen)
	writeName(raw, nameLen, "SJ8PRO_FIRMWARE")
	binary.LittleEndian.PutUint32(raw[magicOffset:], FileMagic)
	binary.LittleEndian.PutUint32(raw[bodyCRCOffset:], 0xdeadbeef)

	for i, e := range entries {
		err := PatchDirEntry(raw, i, e.Length, e.CRC)
		if err != nil {
			t.Fatal(err)
		}
	}

	return raw
}

func TestFileHeaderParse(t *testing.T) {
	raw := testHeader(t, []DirEntry{
		{Length: 1280, CRC: 0x12345678},
		{Length: 2304, CRC: 0x9abcdef0},
	})

	hdr, err := NewFileHeader(raw)
	if err != nil {
		t.Fatal(err)
	}

	if hdr.Name != "SJ8PRO_FIRMWARE" {
		t.Fatalf("name: got '%s'", hdr.Name)
	}
	if hdr.BodyCRC != 0xdeadbeef {
		t.Fatalf("body crc: got 0x%08x", hdr.BodyCRC)
	}
	if len(hdr.Entries) != 2 {
		t.Fatalf("got %d entries", len(hdr.Entries))
	}

	offs := hdr.SectionOffsets()
	if offs[0] != HeaderLen || offs[1] != HeaderLen+1280 {
		t.Fatalf("offsets: got %v", offs)
	}

	if hdr.RunningCRC(0) != 0x12345678^0xffffffff {
		t.Fatalf("running crc: got 0x%08x", hdr.RunningCRC(0))
	}
}

func TestFileHeaderBadMagic(t *testing.T) {
	raw := testHeader(t, nil)
	binary.LittleEndian.PutUint32(raw[magicOffset:], 0x11223344)

	_, err := NewFileHeader(raw)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestFileHeaderShort(t *testing.T) {
	_, err := NewFileHeader(make([]byte, HeaderLen-1))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestFileHeaderZeroTerminated(t *testing.T) {
	// A zero length entry terminates the directory; later slots are
	// ignored even if non-zero
	raw := testHeader(t, []DirEntry{{Length: 512, CRC: 1}})
	err := PatchDirEntry(raw, 2, 1024, 2)
	if err != nil {
		t.Fatal(err)
	}

	hdr, err := NewFileHeader(raw)
	if err != nil {
		t.Fatal(err)
	}

	if len(hdr.Entries) != 1 {
		t.Fatalf("got %d entries", len(hdr.Entries))
	}
}

func TestFileHeaderFullDirectory(t *testing.T) {
	entries := make([]DirEntry, MaxSections)
	for i := range entries {
		entries[i] = DirEntry{Length: uint32(256 * (i + 1)), CRC: uint32(i)}
	}
	raw := testHeader(t, entries)

	hdr, err := NewFileHeader(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(hdr.Entries) != MaxSections {
		t.Fatalf("got %d entries", len(hdr.Entries))
	}

	err = PatchDirEntry(raw, MaxSections, 1, 1)
	if err == nil {
		t.Fatal("expected an error")
	}
}
