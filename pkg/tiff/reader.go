package tiff

import (
	"encoding/binary"
	"fmt"
	"os"
)

// ImageInfo summarizes one IFD of a written container.
type ImageInfo struct {
	SubfileType     uint32
	Width, Height   int
	TileWidth       int
	TileHeight      int
	SamplesPerPixel int
	BitsPerSample   int
	Compression     Compression
	Tiles           int
	Description     string
	Software        string
}

// Reduced reports whether the entry is flagged as a reduced-resolution
// derivative of the primary image.
func (i ImageInfo) Reduced() bool {
	return i.SubfileType&subfileTypeReducedImage != 0
}

// Info is the structural summary of a pyramidal container: the primary image
// first, followed by its linked sub-resolution entries in SubIFD order.
type Info struct {
	BigTIFF bool
	Images  []ImageInfo
}

// ReadInfo parses the structure of a container written by this package.
// It decodes IFD fields only, never tile payloads.
func ReadInfo(path string) (*Info, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tiff: read container: %w", err)
	}
	return ParseInfo(buf)
}

// ParseInfo is ReadInfo over an in-memory container.
func ParseInfo(buf []byte) (*Info, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("tiff: truncated header")
	}
	var order binary.ByteOrder
	switch string(buf[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: bad byte order mark %q", buf[:2])
	}

	info := &Info{}
	var first uint64
	switch order.Uint16(buf[2:]) {
	case 42:
		first = uint64(order.Uint32(buf[4:]))
	case 43:
		if len(buf) < 16 {
			return nil, fmt.Errorf("tiff: truncated BigTIFF header")
		}
		info.BigTIFF = true
		first = order.Uint64(buf[8:])
	default:
		return nil, fmt.Errorf("tiff: unknown version %d", order.Uint16(buf[2:]))
	}
	if first == 0 {
		return nil, fmt.Errorf("tiff: container was not finalized")
	}

	primary, subOffsets, err := decodeIFDInfo(buf, first, info.BigTIFF, order)
	if err != nil {
		return nil, err
	}
	info.Images = append(info.Images, primary)
	for _, off := range subOffsets {
		sub, nested, err := decodeIFDInfo(buf, off, info.BigTIFF, order)
		if err != nil {
			return nil, err
		}
		if len(nested) != 0 {
			return nil, fmt.Errorf("tiff: sub-image declares nested sub-images")
		}
		info.Images = append(info.Images, sub)
	}
	return info, nil
}

func decodeIFDInfo(buf []byte, off uint64, big bool, order binary.ByteOrder) (ImageInfo, []uint64, error) {
	var img ImageInfo
	var subs []uint64

	var n, entrySize, inline uint64
	if big {
		if off+8 > uint64(len(buf)) {
			return img, nil, fmt.Errorf("tiff: IFD offset %d out of range", off)
		}
		n = order.Uint64(buf[off:])
		off += 8
		entrySize, inline = 20, 8
	} else {
		if off+2 > uint64(len(buf)) {
			return img, nil, fmt.Errorf("tiff: IFD offset %d out of range", off)
		}
		n = uint64(order.Uint16(buf[off:]))
		off += 2
		entrySize, inline = 12, 4
	}
	if off+n*entrySize > uint64(len(buf)) {
		return img, nil, fmt.Errorf("tiff: IFD at %d overruns file", off)
	}

	for i := uint64(0); i < n; i++ {
		e := buf[off+i*entrySize:]
		tag := order.Uint16(e)
		typ := order.Uint16(e[2:])
		var count uint64
		var val []byte
		if big {
			count = order.Uint64(e[4:])
			val = e[12:20]
		} else {
			count = uint64(order.Uint32(e[4:]))
			val = e[8:12]
		}

		size := fieldTypeSize(typ) * count
		if size == 0 {
			continue
		}
		var data []byte
		if size <= inline {
			data = val[:size]
		} else {
			var ptr uint64
			if big {
				ptr = order.Uint64(val)
			} else {
				ptr = uint64(order.Uint32(val))
			}
			if ptr+size > uint64(len(buf)) {
				return img, nil, fmt.Errorf("tiff: tag %d value at %d overruns file", tag, ptr)
			}
			data = buf[ptr : ptr+size]
		}

		switch tag {
		case tagNewSubfileType:
			img.SubfileType = uint32(decodeUint(data, typ, 0, order))
		case tagImageWidth:
			img.Width = int(decodeUint(data, typ, 0, order))
		case tagImageLength:
			img.Height = int(decodeUint(data, typ, 0, order))
		case tagBitsPerSample:
			img.BitsPerSample = int(decodeUint(data, typ, 0, order))
		case tagCompression:
			img.Compression = Compression(decodeUint(data, typ, 0, order))
		case tagSamplesPerPixel:
			img.SamplesPerPixel = int(decodeUint(data, typ, 0, order))
		case tagTileWidth:
			img.TileWidth = int(decodeUint(data, typ, 0, order))
		case tagTileHeight:
			img.TileHeight = int(decodeUint(data, typ, 0, order))
		case tagTileOffsets:
			img.Tiles = int(count)
		case tagImageDescription:
			img.Description = trimASCII(data)
		case tagSoftware:
			img.Software = trimASCII(data)
		case tagSubIFDs:
			for j := uint64(0); j < count; j++ {
				subs = append(subs, decodeUint(data, typ, j, order))
			}
		}
	}
	return img, subs, nil
}

// tagTileHeight aliases the TileLength tag for readability above.
const tagTileHeight = tagTileLength

func fieldTypeSize(typ uint16) uint64 {
	switch typ {
	case typeByte, typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeLong8, typeIFD8:
		return 8
	default:
		return 0
	}
}

func decodeUint(data []byte, typ uint16, idx uint64, order binary.ByteOrder) uint64 {
	switch typ {
	case typeByte:
		return uint64(data[idx])
	case typeShort:
		return uint64(order.Uint16(data[2*idx:]))
	case typeLong:
		return uint64(order.Uint32(data[4*idx:]))
	case typeLong8, typeIFD8:
		return order.Uint64(data[8*idx:])
	default:
		return 0
	}
}

func trimASCII(data []byte) string {
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data)
}
