// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/usedbytes/amba-tools/lib/checksum"
)

const (
	// RomfsMagic are the bytes 8A 32 FC 66, read little-endian.
	RomfsMagic uint32 = 0x66fc328a

	// RomfsAlign is the block size file payloads are padded to.
	RomfsAlign = 2048

	// File counts above this are assumed to be a false magic hit
	// rather than a real partition.
	maxRomfsFiles = 0xffff

	romfsCountOffset = 4
	romfsEntryBase   = 8
)

// RomfsPadding is the number of zero bytes following a file payload.
// A payload which already ends on a block boundary still gets a full
// block of padding, so the result is always 1..=RomfsAlign. The
// sample images all follow this rule and depend on it for byte-exact
// reassembly.
func RomfsPadding(length uint32) uint32 {
	return RomfsAlign - length%RomfsAlign
}

// RomfsFile is one directory entry of a ROMFS partition. Offset is
// relative to the start of the partition (the magic bytes).
type RomfsFile struct {
	Name   string
	Length uint32
	Offset uint32
	CRC    uint32
}

type Romfs struct {
	Files   []RomfsFile
	dialect Dialect
}

// NewRomfs parses a ROMFS partition from data, which must start at
// the partition magic and extend at least to the end of the last
// file. A count above maxRomfsFiles is reported as ErrNotRomfs so
// scanners can treat stray magic bytes as noise.
func NewRomfs(data []byte, dialect Dialect) (*Romfs, error) {
	if len(data) < romfsEntryBase {
		return nil, ErrNotRomfs
	}

	magic := binary.LittleEndian.Uint32(data)
	if magic != RomfsMagic {
		return nil, ErrNotRomfs
	}

	count := binary.LittleEndian.Uint32(data[romfsCountOffset:])
	if count > maxRomfsFiles {
		return nil, ErrNotRomfs
	}

	entryLen := dialect.entryLen()
	if romfsEntryBase+int(count)*entryLen > dialect.HeaderLen {
		return nil, ErrNotRomfs
	}
	if len(data) < dialect.HeaderLen {
		return nil, errors.Errorf("Short romfs partition: %d bytes", len(data))
	}

	fs := &Romfs{
		dialect: dialect,
	}

	for i := 0; i < int(count); i++ {
		entry := data[romfsEntryBase+i*entryLen:]
		file := RomfsFile{
			Name:   readName(entry, dialect.FilenameLen),
			Length: binary.LittleEndian.Uint32(entry[dialect.FilenameLen:]),
			Offset: binary.LittleEndian.Uint32(entry[dialect.FilenameLen+4:]),
			CRC:    binary.LittleEndian.Uint32(entry[dialect.FilenameLen+8:]),
		}

		if int64(file.Offset)+int64(file.Length) > int64(len(data)) {
			return nil, errors.Errorf("File '%s' extends past partition end", file.Name)
		}

		fs.Files = append(fs.Files, file)
	}

	return fs, nil
}

var ErrNotRomfs = errors.New("not a romfs partition")

// FileData returns the payload bytes of file i, given the same
// partition slice the Romfs was parsed from.
func (fs *Romfs) FileData(data []byte, i int) []byte {
	f := fs.Files[i]
	return data[f.Offset : f.Offset+f.Length]
}

// VerifyFile checks the declared CRC of file i against its payload.
func (fs *Romfs) VerifyFile(data []byte, i int) bool {
	return checksum.CRC32(fs.FileData(data, i), 0) == fs.Files[i].CRC
}

// RomfsBuilder reassembles a partition from an ordered list of named
// payloads. Files must be added in directory order; offsets are
// assigned sequentially starting at the dialect's header size.
type RomfsBuilder struct {
	dialect Dialect
	files   []RomfsFile
	data    [][]byte
	offset  uint32
}

func NewRomfsBuilder(dialect Dialect) *RomfsBuilder {
	return &RomfsBuilder{
		dialect: dialect,
		offset:  uint32(dialect.HeaderLen),
	}
}

func (b *RomfsBuilder) AddFile(name string, data []byte) error {
	if len(b.files) >= maxRomfsFiles {
		return errors.Errorf("Too many files: %d", len(b.files)+1)
	}
	if romfsEntryBase+(len(b.files)+1)*b.dialect.entryLen() > b.dialect.HeaderLen {
		return errors.Errorf("Directory full: %d files", len(b.files)+1)
	}

	b.files = append(b.files, RomfsFile{
		Name:   name,
		Length: uint32(len(data)),
		Offset: b.offset,
		CRC:    checksum.CRC32(data, 0),
	})
	b.data = append(b.data, data)
	b.offset += uint32(len(data)) + RomfsPadding(uint32(len(data)))

	return nil
}

// Bytes serializes the partition: magic, count, directory entries,
// zero padding to the header size, then each payload followed by its
// tail padding.
func (b *RomfsBuilder) Bytes() []byte {
	out := make([]byte, b.dialect.HeaderLen, b.offset)

	binary.LittleEndian.PutUint32(out, RomfsMagic)
	binary.LittleEndian.PutUint32(out[romfsCountOffset:], uint32(len(b.files)))

	entryLen := b.dialect.entryLen()
	for i, f := range b.files {
		entry := out[romfsEntryBase+i*entryLen:]
		writeName(entry, b.dialect.FilenameLen, f.Name)
		binary.LittleEndian.PutUint32(entry[b.dialect.FilenameLen:], f.Length)
		binary.LittleEndian.PutUint32(entry[b.dialect.FilenameLen+4:], f.Offset)
		binary.LittleEndian.PutUint32(entry[b.dialect.FilenameLen+8:], f.CRC)
	}

	for _, data := range b.data {
		out = append(out, data...)
		out = append(out, make([]byte, RomfsPadding(uint32(len(data))))...)
	}

	return out
}
