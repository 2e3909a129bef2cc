package storage

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// neither constructor can fail without a source or options
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDecoder, _ = zstd.NewReader(nil)
)

// compressBlob zstd-compresses an analysis document for the SQL backends.
func compressBlob(data []byte) []byte {
	return blobEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// decompressBlob reverses compressBlob. Uncompressed input is returned as is.
func decompressBlob(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	out, err := blobDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress analysis: %w", err)
	}
	return out, nil
}
