package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the archive compression algorithm.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionLZ4  CompressionType = "lz4"
)

// Compressor compresses and decompresses archive payloads.
type Compressor struct {
	compressionType CompressionType
}

// NewCompressor creates a compressor; an empty type means none.
func NewCompressor(compressionType CompressionType) *Compressor {
	if compressionType == "" {
		compressionType = CompressionNone
	}
	return &Compressor{compressionType: compressionType}
}

// Type returns the configured algorithm.
func (c *Compressor) Type() CompressionType {
	return c.compressionType
}

// Compress compresses a payload.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.compressionType {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buffer bytes.Buffer
		writer, err := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	case CompressionLZ4:
		var buffer bytes.Buffer
		writer := lz4.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type %q", c.compressionType)
	}
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.compressionType {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unsupported compression type %q", c.compressionType)
	}
}
