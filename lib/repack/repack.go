// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package repack

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cheggaaa/pb/v3"
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

func listSource(srcDir string) ([]string, error) {
	infos, err := ioutil.ReadDir(srcDir)
	if err != nil {
		return nil, errors.Wrap(err, "Listing source directory")
	}

	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name()
	}
	// ReadDir already sorts, but emission order is load-bearing, so
	// don't rely on it.
	sort.Strings(names)

	return names, nil
}

func buildRomfsPayload(srcDir string, payloadOff uint32, opts Options) ([]byte, error) {
	dirFile := filepath.Join(srcDir, extract.Name(payloadOff, extract.DirSuffix))
	f, err := os.Open(dirFile)
	if err != nil {
		return nil, errors.Wrap(err, "Opening directory listing")
	}
	defer f.Close()

	filesDir := filepath.Join(srcDir, extract.Name(payloadOff, extract.FilesSuffix))

	builder := firmware.NewRomfsBuilder(opts.Dialect)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimRight(scanner.Text(), "\r")
		if name == "" {
			continue
		}

		data, err := ioutil.ReadFile(filepath.Join(filesDir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "Reading romfs file '%s'", name)
		}

		err = builder.AddFile(name, data)
		if err != nil {
			return nil, errors.Wrapf(err, "Adding romfs file '%s'", name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Reading directory listing")
	}

	return builder.Bytes(), nil
}

func createExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Errorf("Output '%s' already exists", path)
		}
		return nil, errors.Wrapf(err, "Creating '%s'", path)
	}
	return f, nil
}

// Repack reassembles a firmware image from a directory produced by
// the unpacker. The section headers and the 560-byte file header are
// reused verbatim apart from the length and checksum fields, which
// are recomputed as sections are emitted.
func Repack(srcDir, binPath, chPath string, opts Options) error {
	if _, err := os.Stat(chPath); err == nil {
		return errors.Errorf("Output '%s' already exists", chPath)
	}

	names, err := listSource(srcDir)
	if err != nil {
		return err
	}

	rawHdr, err := ioutil.ReadFile(filepath.Join(srcDir, extract.HeaderFile))
	if err != nil {
		return errors.Wrap(err, "Reading firmware header")
	}
	if len(rawHdr) != firmware.HeaderLen {
		return errors.Errorf("Firmware header is %d bytes, expected %d",
			len(rawHdr), firmware.HeaderLen)
	}

	out, err := createExclusive(binPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.Write(rawHdr)
	if err != nil {
		return errors.Wrap(err, "Writing firmware header")
	}

	var heads []string
	for _, name := range names {
		if extract.IsHead(name) {
			heads = append(heads, name)
		}
	}

	runningCRC := uint32(0)
	sectionsCount := 0
	bar := pb.StartNew(len(heads))
	for _, name := range heads {
		headerOff, err := extract.Offset(name)
		if err != nil {
			return err
		}
		payloadOff := headerOff + firmware.SectionHeaderLen

		rawSectHdr, err := ioutil.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			return errors.Wrap(err, "Reading section header")
		}
		if len(rawSectHdr) != firmware.SectionHeaderLen {
			return errors.Errorf("Section header '%s' is %d bytes, expected %d",
				name, len(rawSectHdr), firmware.SectionHeaderLen)
		}

		dirFile := filepath.Join(srcDir, extract.Name(payloadOff, extract.DirSuffix))
		sectFile := filepath.Join(srcDir, extract.Name(payloadOff, extract.SectSuffix))

		if _, err := os.Stat(dirFile); err == nil {
			// ROMFS section: rebuild the partition, then emit
			// header+payload as one unit.
			payload, err := buildRomfsPayload(srcDir, payloadOff, opts)
			if err != nil {
				return err
			}

			err = firmware.PatchSectionHeader(rawSectHdr, payload)
			if err != nil {
				return err
			}

			sectionBytes := append(rawSectHdr, payload...)
			_, err = out.Write(sectionBytes)
			if err != nil {
				return errors.Wrap(err, "Writing section")
			}

			runningCRC = checksum.CRC32(sectionBytes, runningCRC)
			err = patchDirEntry(out, sectionsCount, uint32(len(sectionBytes)), runningCRC)
			if err != nil {
				return err
			}
			sectionsCount++
		} else if _, err := os.Stat(sectFile); err == nil {
			// Opaque section. The running CRC is folded in two
			// steps, header then payload - matching how the
			// stock images were produced.
			payload, err := ioutil.ReadFile(sectFile)
			if err != nil {
				return errors.Wrap(err, "Reading section payload")
			}

			err = firmware.PatchSectionHeader(rawSectHdr, payload)
			if err != nil {
				return err
			}

			_, err = out.Write(rawSectHdr)
			if err != nil {
				return errors.Wrap(err, "Writing section header")
			}
			runningCRC = checksum.CRC32(rawSectHdr, runningCRC)

			_, err = out.Write(payload)
			if err != nil {
				return errors.Wrap(err, "Writing section payload")
			}
			runningCRC = checksum.CRC32(payload, runningCRC)

			length := uint32(len(rawSectHdr) + len(payload))
			err = patchDirEntry(out, sectionsCount, length, runningCRC)
			if err != nil {
				return err
			}
			sectionsCount++
		} else {
			return errors.Errorf("Missing data for section at 0x%08X", headerOff)
		}

		log.Verbosef("Section at 0x%08X emitted, running crc 0x%08x\n",
			headerOff, runningCRC)
		bar.Increment()
	}
	bar.Finish()

	err = patchBodyCRC(out)
	if err != nil {
		return err
	}

	err = writeChecksumFile(out, chPath)
	if err != nil {
		return err
	}

	err = out.Close()
	if err != nil {
		return errors.Wrap(err, "Closing output")
	}

	log.Printf("Wrote %d sections to %s\n", sectionsCount, binPath)

	return nil
}

func patchDirEntry(out *os.File, i int, length, runningCRC uint32) error {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw, length)
	binary.LittleEndian.PutUint32(raw[4:], 0xffffffff^runningCRC)

	if i >= firmware.MaxSections {
		return errors.Errorf("Too many sections: %d", i+1)
	}

	_, err := out.WriteAt(raw, firmware.DirEntryPos(i))
	return errors.Wrap(err, "Patching directory entry")
}

func patchBodyCRC(out *os.File) error {
	_, err := out.Seek(firmware.HeaderLen, io.SeekStart)
	if err != nil {
		return errors.Wrap(err, "Seeking body")
	}

	h := crc32.NewIEEE()
	_, err = io.Copy(h, out)
	if err != nil {
		return errors.Wrap(err, "Checksumming body")
	}

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, h.Sum32())
	_, err = out.WriteAt(raw, firmware.BodyCRCPos())
	return errors.Wrap(err, "Patching body CRC")
}

func writeChecksumFile(out *os.File, chPath string) error {
	_, err := out.Seek(0, io.SeekStart)
	if err != nil {
		return errors.Wrap(err, "Seeking output")
	}

	digest, err := checksum.MD5Hex(out)
	if err != nil {
		return err
	}

	chData, err := checksum.EncodeCh(digest)
	if err != nil {
		return err
	}

	ch, err := createExclusive(chPath)
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = ch.Write(chData)
	if err != nil {
		return errors.Wrap(err, "Writing checksum file")
	}

	return errors.Wrap(ch.Close(), "Closing checksum file")
}
