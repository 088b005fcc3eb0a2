// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package unpack

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/usedbytes/amba-tools/lib/checksum"
	"github.com/usedbytes/amba-tools/lib/extract"
	"github.com/usedbytes/amba-tools/lib/firmware"
)

type Options struct {
	Dialect   firmware.Dialect
	LEVersion bool
}

type section struct {
	offset uint32
	end    uint32
	entry  int
}

func passFail(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}

func scanMagic(data []byte, magic uint32) []uint32 {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, magic)

	var hits []uint32
	pos := 0
	for {
		idx := bytes.Index(data[pos:], raw)
		if idx < 0 {
			break
		}
		hits = append(hits, uint32(pos+idx))
		pos += idx + 1
	}

	return hits
}

func checkMD5(data []byte, chPath string) error {
	if chPath == "" {
		log.Println("WARNING: No checksum file given, skipping MD5 check")
		return nil
	}

	chData, err := ioutil.ReadFile(chPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("WARNING: Checksum file missing, skipping MD5 check")
			return nil
		}
		return errors.Wrap(err, "Reading checksum file")
	}

	want, err := checksum.DecodeCh(chData)
	if err != nil {
		return errors.Wrap(err, "Parsing checksum file")
	}

	got, err := checksum.MD5Hex(bytes.NewReader(data))
	if err != nil {
		return err
	}

	log.Printf("MD5: %s ... %s\n", got, passFail(got == want))

	return nil
}

// findSections reconciles the directory table with a magic scan of
// the whole image. The directory gives the expected header offsets;
// the scan confirms them. A magic hit nowhere near the directory is
// reported and ignored, so checksummed data containing the magic
// bytes doesn't turn into a phantom section.
func findSections(data []byte, hdr *firmware.FileHeader) []section {
	expected := hdr.SectionOffsets()

	confirmed := make(map[uint32]bool)
	for _, m := range scanMagic(data, firmware.SectionMagic) {
		if m < firmware.SectionMagicOffset {
			continue
		}
		start := m - firmware.SectionMagicOffset

		found := false
		for _, off := range expected {
			if start == off {
				found = true
				break
			}
		}

		if !found {
			log.Printf("WARNING: Section magic at unexpected offset 0x%08X\n", m)
			continue
		}
		confirmed[start] = true
	}

	var sections []section
	for i, off := range expected {
		if !confirmed[off] {
			log.Printf("WARNING: No section magic at expected offset 0x%08X\n",
				off+firmware.SectionMagicOffset)
			continue
		}

		end := off + hdr.Entries[i].Length
		if int64(end) > int64(len(data)) {
			log.Printf("WARNING: Section at 0x%08X extends past EOF, truncating\n", off)
			end = uint32(len(data))
		}

		sections = append(sections, section{offset: off, end: end, entry: i})
	}

	sort.Slice(sections, func(i, j int) bool {
		return sections[i].offset < sections[j].offset
	})

	return sections
}

func extractRomfs(data []byte, payloadOff uint32, fs *firmware.Romfs, destDir string) error {
	partition := data[payloadOff:]

	filesDir := filepath.Join(destDir, extract.Name(payloadOff, extract.FilesSuffix))
	if len(fs.Files) != 0 {
		err := os.Mkdir(filesDir, 0755)
		if err != nil {
			return errors.Wrap(err, "Creating files directory")
		}
	}

	var listing strings.Builder
	bar := pb.StartNew(len(fs.Files))
	for i, f := range fs.Files {
		if !fs.VerifyFile(partition, i) {
			log.Printf("  %s crc ... FAIL\n", f.Name)
		}

		err := ioutil.WriteFile(filepath.Join(filesDir, f.Name), fs.FileData(partition, i), 0644)
		if err != nil {
			return errors.Wrapf(err, "Writing '%s'", f.Name)
		}

		listing.WriteString(f.Name)
		listing.WriteString("\n")
		bar.Increment()
	}
	bar.Finish()

	dirFile := filepath.Join(destDir, extract.Name(payloadOff, extract.DirSuffix))
	err := ioutil.WriteFile(dirFile, []byte(listing.String()), 0644)
	if err != nil {
		return errors.Wrap(err, "Writing directory listing")
	}

	return nil
}

// Unpack validates the image at binPath and extracts it into destDir,
// which must not already exist. Checksum failures are reported but
// don't stop extraction; the goal is to recover as much as possible
// from a damaged image.
func Unpack(binPath, chPath, destDir string, opts Options) error {
	if _, err := os.Stat(destDir); err == nil {
		return errors.Errorf("Destination '%s' already exists", destDir)
	}

	f, err := os.Open(binPath)
	if err != nil {
		return errors.Wrap(err, "Opening input file")
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "Mapping input file")
	}
	defer m.Unmap()
	data := []byte(m)

	err = checkMD5(data, chPath)
	if err != nil {
		return err
	}

	hdr, err := firmware.NewFileHeader(data)
	if err != nil {
		return errors.Wrap(err, "Parsing file header")
	}
	log.Println(hdr)
	log.Printf("Body CRC: 0x%08x ... %s\n", hdr.BodyCRC,
		passFail(checksum.CRC32(data[firmware.HeaderLen:], 0) == hdr.BodyCRC))

	err = os.MkdirAll(destDir, 0755)
	if err != nil {
		return errors.Wrap(err, "Creating destination")
	}

	err = ioutil.WriteFile(filepath.Join(destDir, extract.HeaderFile), hdr.RawData(), 0644)
	if err != nil {
		return errors.Wrap(err, "Writing header file")
	}

	sections := findSections(data, hdr)

	romfsOffsets := make(map[uint32]bool)
	runningCRC := uint32(0)
	for _, s := range sections {
		sectionBytes := data[s.offset:s.end]
		runningCRC = checksum.CRC32(sectionBytes, runningCRC)

		sh, err := firmware.NewSectionHeader(sectionBytes, opts.LEVersion)
		if err != nil {
			log.Printf("WARNING: Section at 0x%08X: %v\n", s.offset, err)
			continue
		}

		payloadOff := s.offset + firmware.SectionHeaderLen
		payload := sectionBytes[firmware.SectionHeaderLen:]

		crcOK := checksum.CRC32(payload, 0) == sh.CRC
		chainOK := runningCRC == hdr.RunningCRC(s.entry)
		log.Printf("0x%08X %9s  %-8s %s  crc %s  chain %s\n",
			s.offset, humanize.Bytes(uint64(len(payload))), sh.Version, sh.Date,
			passFail(crcOK), passFail(chainOK))

		err = ioutil.WriteFile(
			filepath.Join(destDir, extract.Name(s.offset, extract.HeadSuffix)),
			sh.RawData(), 0644)
		if err != nil {
			return errors.Wrap(err, "Writing section header")
		}

		fs, err := firmware.NewRomfs(payload, opts.Dialect)
		if err == nil {
			log.Verbosef("Section at 0x%08X is a romfs with %d files\n",
				s.offset, len(fs.Files))
			romfsOffsets[payloadOff] = true

			err = extractRomfs(data, payloadOff, fs, destDir)
			if err != nil {
				return err
			}
			continue
		} else if errors.Cause(err) != firmware.ErrNotRomfs {
			log.Printf("WARNING: Section at 0x%08X: %v\n", s.offset, err)
		}

		err = ioutil.WriteFile(
			filepath.Join(destDir, extract.Name(payloadOff, extract.SectSuffix)),
			payload, 0644)
		if err != nil {
			return errors.Wrap(err, "Writing section payload")
		}
	}

	for _, hit := range scanMagic(data, firmware.RomfsMagic) {
		if !romfsOffsets[hit] {
			log.Printf("WARNING: Romfs magic at unexpected offset 0x%08X\n", hit)
		}
	}

	return nil
}
