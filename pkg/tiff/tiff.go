// Package tiff implements a streaming writer for tiled, multi-resolution
// TIFF and BigTIFF containers. A file holds one primary image whose reduced
// resolution derivatives are linked through the SubIFDs tag rather than the
// page chain, the layout pyramidal viewers expect. Tile payloads are written
// strictly in the order they are appended; the IFD chain is assembled when
// the writer is closed.
package tiff

import (
	"fmt"
	"strings"
)

// TIFF tag numbers used by this writer.
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagSamplesPerPixel  = 277
	tagPlanarConfig     = 284
	tagSoftware         = 305
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
	tagSubIFDs          = 330
	tagSampleFormat     = 339
)

// TIFF field types.
const (
	typeByte  = 1
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
	typeLong8 = 16
	typeIFD8  = 18
)

const (
	subfileTypePrimary      = 0
	subfileTypeReducedImage = 1
)

const (
	photometricMinIsBlack = 1
	planarConfigSeparate  = 2
	sampleFormatUnsigned  = 1
)

// Compression selects the per-tile codec, using the TIFF tag values.
type Compression uint16

const (
	// CompressionNone stores raw little-endian sample bytes.
	CompressionNone Compression = 1

	// CompressionDeflate wraps each tile in a zlib DEFLATE stream
	// (TIFF "Adobe deflate"). Encoding uses a fixed level so identical
	// inputs produce byte-identical files.
	CompressionDeflate Compression = 8
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("Compression(%d)", uint16(c))
	}
}

// ParseCompression maps a configuration string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "raw":
		return CompressionNone, nil
	case "deflate", "zlib":
		return CompressionDeflate, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}
