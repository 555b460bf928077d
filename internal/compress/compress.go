// Package compress holds the codecs used to store cached versions.
package compress

import (
	"fmt"
	"strings"
)

const (
	NopCodec    = "nop"
	GZipCodec   = "gzip"
	BrotliCodec = "brotli"
	LZ4Codec    = "lz4"
)

// Compress encodes and decodes opaque payloads. Decode must accept anything
// Encode of the same codec produced.
type Compress interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// New returns the codec registered under name. An empty name selects nop.
func New(name string) (Compress, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NopCodec:
		return NewNop(), nil
	case GZipCodec:
		return NewGZip(), nil
	case BrotliCodec:
		return NewBrotli(), nil
	case LZ4Codec:
		return NewLZ4(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
