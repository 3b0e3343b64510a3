// Package crc computes the CRC32 checksum carried alongside the encrypted
// session-key blob in the channel-encrypt handshake (spec §4.6).
package crc

import "hash/crc32"

// Signed returns the IEEE CRC32 of data. The wire format transmits this as a
// plain little-endian u32; the "signed" name matches the vendor protocol's
// historical naming (the value is interpreted as int32 by some legacy
// consumers) even though this implementation always returns an unsigned u32.
func Signed(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
