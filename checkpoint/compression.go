package checkpoint

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how archive payloads are stored
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1 // Fast, moderate ratio
	CompressionZSTD Compression = 2 // Better ratio for cold checkpoints
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression accepts none, lz4 or zstd; empty means none
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, fmt.Errorf("unknown compression %q, want none, lz4 or zstd", s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(math.MaxUint32))
	return dec
}

// compress returns the encoded payload and the compression actually used.
// Payloads LZ4 cannot shrink are stored raw.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, CompressionNone, nil
	}
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, c, err
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return out[:n], CompressionLZ4, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), CompressionZSTD, nil
	}
	return nil, c, fmt.Errorf("unsupported compression %v", c)
}

// LZ4 cannot expand a block more than this. The zstd output buffer is
// preallocated up to the same ratio and grows past it only as data decodes.
const maxExpansion = 255

// decompress expands data to rawLen bytes. rawLen comes from an unverified
// header, so it is checked against what the payload can expand to before
// any buffer of that size is allocated.
func decompress(data []byte, c Compression, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != rawLen {
			return nil, fmt.Errorf("stored payload is %d bytes, header says %d", len(data), rawLen)
		}
		return data, nil
	case CompressionLZ4:
		if rawLen > maxExpansion*len(data) {
			return nil, fmt.Errorf("lz4 payload of %d bytes cannot expand to %d", len(data), rawLen)
		}
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, fmt.Errorf("lz4 payload expanded to %d bytes, want %d", n, rawLen)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, min(rawLen, maxExpansion*len(data))))
		if err != nil {
			return nil, err
		}
		if len(out) != rawLen {
			return nil, fmt.Errorf("zstd payload expanded to %d bytes, want %d", len(out), rawLen)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported compression %v", c)
}
