// Package hash provides the CRC32-Castagnoli checksums used for file content
// integrity: Output.Checksum and the per-file checksums of backup manifests.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	sum := h.Sum32()
package hash
