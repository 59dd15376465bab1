package transport

import (
	"fmt"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compressor is a wire compression algorithm a client may declare in
// Startup's COMPRESSION option, advertised back in Options' Supported
// response per spec.md §4.3's default-response table. Node.dispatch calls
// NegotiateCompressor against the Startup frame's COMPRESSION option and
// records the result on the originating Conn (Conn.SetCompressor), but (per
// the Open Question resolution in DESIGN.md) nothing applies it to frame
// bytes: every message this engine emits is either a canned prime or one of
// the tiny default responses, none of which benefit from compression, and
// guessing at go-cassandra-native-protocol's compression hook surface from
// the two call sites this pack retrieves would be exactly the kind of
// unguided API guess this project avoids. The codecs below are real,
// tested implementations so the dependency is exercised rather than
// declared and ignored.
type Compressor string

const (
	CompressNone   Compressor = ""
	CompressSnappy Compressor = "snappy"
	CompressLZ4    Compressor = "lz4"
)

// NegotiateCompressor maps a client's requested COMPRESSION option name
// (case-insensitive) onto a supported Compressor, falling back to
// CompressNone for anything unrecognized.
func NegotiateCompressor(name string) Compressor {
	switch strings.ToLower(name) {
	case string(CompressSnappy):
		return CompressSnappy
	case string(CompressLZ4):
		return CompressLZ4
	default:
		return CompressNone
	}
}

// Compress encodes data with c's algorithm. CompressNone returns data
// unchanged.
func Compress(c Compressor, data []byte) ([]byte, error) {
	switch c {
	case CompressSnappy:
		return snappy.Encode(nil, data), nil
	case CompressLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var lzc lz4.Compressor
		n, err := lzc.CompressBlock(data, buf)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf[:n], nil
	case CompressNone:
		return data, nil
	default:
		return nil, fmt.Errorf("transport: unknown compressor %q", c)
	}
}

// Decompress reverses Compress. For lz4, decompressedSize must be the
// original uncompressed length (the wire protocol carries this
// separately in the frame header when compression is negotiated).
func Decompress(c Compressor, data []byte, decompressedSize int) ([]byte, error) {
	switch c {
	case CompressSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decompress: %w", err)
		}
		return out, nil
	case CompressLZ4:
		buf := make([]byte, decompressedSize)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return buf[:n], nil
	case CompressNone:
		return data, nil
	default:
		return nil, fmt.Errorf("transport: unknown compressor %q", c)
	}
}
