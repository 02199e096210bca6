package util

import (
	"fmt"
	"hash/crc32"
)

// ContentFingerprint returns a CRC32 fingerprint of a resource body.
func ContentFingerprint(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}
