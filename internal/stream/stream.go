// Package stream provides the symmetric compression transforms shared by
// both pipelines. Data moves through fixed-size chunks, so memory stays
// bounded no matter how large the database export is.
package stream

import (
	"compress/gzip"
	"fmt"
	"io"
)

// chunkSize bounds the copy buffer. Compression never holds more than a
// small constant multiple of this in memory.
const chunkSize = 128 * 1024

// Pack gzip-compresses src into dst incrementally and returns the number of
// uncompressed bytes consumed.
func Pack(dst io.Writer, src io.Reader) (int64, error) {
	zw := gzip.NewWriter(dst)
	n, err := io.CopyBuffer(zw, src, make([]byte, chunkSize))
	if err != nil {
		_ = zw.Close()
		return n, fmt.Errorf("compress: %w", err)
	}
	// Close flushes the gzip trailer; without it the artifact is truncated.
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("finalize compress: %w", err)
	}
	return n, nil
}

// Unpack decompresses gzip data from src into dst incrementally and returns
// the number of uncompressed bytes produced.
func Unpack(dst io.Writer, src io.Reader) (int64, error) {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("decompress: %w", err)
	}
	n, err := io.CopyBuffer(dst, zr, make([]byte, chunkSize))
	if err != nil {
		_ = zr.Close()
		return n, fmt.Errorf("decompress: %w", err)
	}
	if err := zr.Close(); err != nil {
		return n, fmt.Errorf("decompress: %w", err)
	}
	return n, nil
}
