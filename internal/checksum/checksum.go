// Package checksum provides the digests used across framegrab: CRC-32 for PNG
// chunks and SHA-256 fingerprints for whole files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
)

// CRC32 returns the IEEE CRC-32 of data (reflected polynomial 0xEDB88320,
// register initialised to 0xFFFFFFFF, result complemented).
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, crc32.IEEETable)
}

// ChunkCRC returns the CRC-32 a PNG chunk stores: type tag followed by data.
// The length field is not covered.
func ChunkCRC(typ string, data []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, []byte(typ))
	return crc32.Update(crc, crc32.IEEETable, data)
}

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
