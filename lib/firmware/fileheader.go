// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// HeaderLen is the size of the firmware file header. Everything
	// after it is the "body" covered by the global CRC.
	HeaderLen = 560

	// FileMagic are the bytes E6 DF 32 87, read little-endian.
	FileMagic uint32 = 0x8732dfe6

	// MaxSections is the capacity of the section directory.
	MaxSections = 16

	nameLen       = 32
	magicOffset   = 32
	bodyCRCOffset = 36
	dirOffset     = 48
	dirEntryLen   = 8
)

// DirEntry is one section directory slot. CRC is stored negated on
// the wire (0xFFFFFFFF ^ running CRC up to and including this
// section).
type DirEntry struct {
	Length uint32
	CRC    uint32
}

type FileHeader struct {
	Name    string
	BodyCRC uint32
	Entries []DirEntry

	rawData []byte
}

func NewFileHeader(rawData []byte) (*FileHeader, error) {
	if len(rawData) < HeaderLen {
		return nil, errors.Errorf("Short file header: %d bytes", len(rawData))
	}
	rawData = rawData[:HeaderLen]

	magic := binary.LittleEndian.Uint32(rawData[magicOffset:])
	if magic != FileMagic {
		return nil, errors.Errorf("Bad file magic: 0x%08x", magic)
	}

	hdr := &FileHeader{
		Name:    readName(rawData, nameLen),
		BodyCRC: binary.LittleEndian.Uint32(rawData[bodyCRCOffset:]),
		rawData: rawData,
	}

	for i := 0; i < MaxSections; i++ {
		length := binary.LittleEndian.Uint32(rawData[dirOffset+i*dirEntryLen:])
		if length == 0 {
			break
		}
		hdr.Entries = append(hdr.Entries, DirEntry{
			Length: length,
			CRC:    binary.LittleEndian.Uint32(rawData[dirOffset+i*dirEntryLen+4:]),
		})
	}

	return hdr, nil
}

// RawData is the verbatim 560-byte header, including the regions this
// codec doesn't interpret.
func (fh *FileHeader) RawData() []byte {
	return fh.rawData
}

// SectionOffsets are the header start offsets implied by the
// directory: cumulative entry lengths from the end of the file
// header.
func (fh *FileHeader) SectionOffsets() []uint32 {
	offs := make([]uint32, len(fh.Entries))
	pos := uint32(HeaderLen)
	for i, e := range fh.Entries {
		offs[i] = pos
		pos += e.Length
	}
	return offs
}

// RunningCRC is the un-negated running checksum recorded for entry i.
func (fh *FileHeader) RunningCRC(i int) uint32 {
	return fh.Entries[i].CRC ^ 0xffffffff
}

func (fh FileHeader) String() string {
	str := ""
	str += fmt.Sprintf("Name:     %s\n", fh.Name)
	str += fmt.Sprintf("Body CRC: 0x%08x\n", fh.BodyCRC)
	str += fmt.Sprintf("Sections: %d", len(fh.Entries))
	return str
}

// PatchDirEntry writes directory slot i of a raw header image.
// crc must already be negated.
func PatchDirEntry(rawHdr []byte, i int, length, crc uint32) error {
	if i >= MaxSections {
		return errors.Errorf("Too many sections: %d", i+1)
	}
	binary.LittleEndian.PutUint32(rawHdr[dirOffset+i*dirEntryLen:], length)
	binary.LittleEndian.PutUint32(rawHdr[dirOffset+i*dirEntryLen+4:], crc)
	return nil
}

// DirEntryPos is the file offset of directory slot i, for in-place
// patching of an emitted header.
func DirEntryPos(i int) int64 {
	return int64(dirOffset + i*dirEntryLen)
}

// BodyCRCPos is the file offset of the global body CRC field.
func BodyCRCPos() int64 {
	return int64(bodyCRCOffset)
}
