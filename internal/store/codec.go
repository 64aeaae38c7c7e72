package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses dataset payloads at rest
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CodecByName returns the codec registered under name. The empty name
// selects zstd.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return ZstdCodec{}, nil
	case "lz4":
		return LZ4Codec{}, nil
	case "none":
		return NoopCodec{}, nil
	}
	return nil, fmt.Errorf("unknown store codec %q (want zstd, lz4 or none)", name)
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInit    sync.Once
	errZstdInit error
)

// zstdCoders lazily creates the shared encoder and decoder. EncodeAll and
// DecodeAll are safe for concurrent use.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdInit.Do(func() {
		zstdEncoder, errZstdInit = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if errZstdInit != nil {
			return
		}
		zstdDecoder, errZstdInit = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdEncoder, zstdDecoder, errZstdInit
}

// ZstdCodec compresses with Zstandard
type ZstdCodec struct{}

func (ZstdCodec) Name() string { return "zstd" }

func (ZstdCodec) Compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

func (ZstdCodec) Decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

// LZ4Codec compresses with the LZ4 frame format
type LZ4Codec struct{}

func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4Codec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	return out, nil
}

// NoopCodec stores payloads uncompressed
type NoopCodec struct{}

func (NoopCodec) Name() string                           { return "none" }
func (NoopCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoopCodec) Decompress(data []byte) ([]byte, error) { return data, nil }
