// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package checksum

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// CRC32 is the zlib-flavour CRC over data, seeded so that checksums
// chain across consecutive spans:
//   CRC32(b, CRC32(a, 0)) == CRC32(a||b, 0)
// The CRC of an empty span with seed 0 is 0.
func CRC32(data []byte, seed uint32) uint32 {
	return crc32.Update(seed, crc32.IEEETable, data)
}

func MD5Hex(r io.Reader) (string, error) {
	h := md5.New()
	_, err := io.Copy(h, r)
	if err != nil {
		return "", errors.Wrap(err, "Hashing data")
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChLen is the size of a ".ch" checksum file.
const ChLen = 16

// EncodeCh packs a 32-digit MD5 hex digest into the ".ch" format:
// four 8-digit slices of the digest, each read as a 32-bit value and
// stored little-endian.
func EncodeCh(digest string) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.Errorf("Expected 32 hex digits, got %d", len(digest))
	}

	out := make([]byte, ChLen)
	for i := 0; i < 4; i++ {
		val, err := strconv.ParseUint(digest[i*8:(i+1)*8], 16, 32)
		if err != nil {
			return nil, errors.Wrap(err, "Parsing digest")
		}
		binary.LittleEndian.PutUint32(out[i*4:], uint32(val))
	}

	return out, nil
}

// DecodeCh recovers the hex digest from a ".ch" file image.
func DecodeCh(data []byte) (string, error) {
	if len(data) != ChLen {
		return "", errors.Errorf("Expected %d bytes, got %d", ChLen, len(data))
	}

	digest := ""
	for i := 0; i < 4; i++ {
		digest += fmt.Sprintf("%08x", binary.LittleEndian.Uint32(data[i*4:]))
	}

	return digest, nil
}
