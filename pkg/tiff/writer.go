package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflateLevel is fixed so repeated writes of the same pixels produce
// byte-identical files.
const deflateLevel = 6

// Config controls the container-level encoding.
type Config struct {
	// ByteOrder of the file. Defaults to little endian.
	ByteOrder binary.ByteOrder

	// BigTIFF selects 64-bit offset addressing. Required once the total
	// pixel volume can exceed 4 GiB; on by default in the pyramid writer.
	BigTIFF bool
}

// ImageConfig describes one image entry (IFD) of the container.
type ImageConfig struct {
	Width, Height         int
	TileWidth, TileHeight int

	// SamplesPerPixel is the channel count. Channels are stored as separate
	// sequential planes (PlanarConfiguration 2), never interleaved.
	SamplesPerPixel int

	// BitsPerSample is 8 or 16; every channel shares it.
	BitsPerSample int

	Compression Compression

	// Description is embedded in the ImageDescription tag. Used for the
	// structured metadata block on the primary image.
	Description string

	// Software identifies the creating tool.
	Software string

	// SubImages declares how many reduced-resolution sub-images will be
	// linked to this image through the SubIFDs tag. Primary image only.
	SubImages int
}

func (c ImageConfig) validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("tiff: image dimensions %dx%d", c.Width, c.Height)
	}
	if c.TileWidth < 1 || c.TileHeight < 1 {
		return fmt.Errorf("tiff: tile dimensions %dx%d", c.TileWidth, c.TileHeight)
	}
	if c.SamplesPerPixel < 1 {
		return fmt.Errorf("tiff: %d samples per pixel", c.SamplesPerPixel)
	}
	if c.BitsPerSample != 8 && c.BitsPerSample != 16 {
		return fmt.Errorf("tiff: %d bits per sample", c.BitsPerSample)
	}
	switch c.Compression {
	case CompressionNone, CompressionDeflate:
	default:
		return fmt.Errorf("tiff: compression %d", c.Compression)
	}
	return nil
}

// Image receives the tile payloads for one IFD. Tiles must be appended in
// plane-major scan order: all tiles of channel 0 left-to-right then
// top-to-bottom, then channel 1, and so on.
type Image struct {
	w       *Writer
	cfg     ImageConfig
	reduced bool
	expect  int
	offsets []uint64
	counts  []uint64
}

// Writer assembles one tiled pyramidal TIFF. Tile data streams to the
// underlying file as it is appended; Close writes the IFD chain and patches
// the header, after which the file is complete.
type Writer struct {
	ws     io.WriteSeeker
	order  binary.ByteOrder
	big    bool
	off    uint64
	images []*Image
	closed bool
}

// Create writes the file header and returns a writer positioned for the
// first tile payload.
func Create(ws io.WriteSeeker, cfg Config) (*Writer, error) {
	order := cfg.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	w := &Writer{ws: ws, order: order, big: cfg.BigTIFF}

	var header []byte
	if order == binary.LittleEndian {
		header = []byte("II")
	} else {
		header = []byte("MM")
	}
	if w.big {
		// BigTIFF: version 43, 8-byte offsets, placeholder first-IFD offset.
		header = w.put16(header, 43)
		header = w.put16(header, 8)
		header = w.put16(header, 0)
		header = w.put64(header, 0)
	} else {
		header = w.put16(header, 42)
		header = w.put32(header, 0)
	}
	if _, err := ws.Write(header); err != nil {
		return nil, fmt.Errorf("tiff: write header: %w", err)
	}
	w.off = uint64(len(header))
	return w, nil
}

func (w *Writer) current() *Image {
	if len(w.images) == 0 {
		return nil
	}
	return w.images[len(w.images)-1]
}

func (w *Writer) newImage(cfg ImageConfig, reduced bool) (*Image, error) {
	if w.closed {
		return nil, fmt.Errorf("tiff: writer is closed")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cur := w.current(); cur != nil {
		if len(cur.offsets) != cur.expect {
			return nil, fmt.Errorf("tiff: previous image incomplete: %d of %d tiles appended",
				len(cur.offsets), cur.expect)
		}
	}
	if reduced {
		if len(w.images) == 0 {
			return nil, fmt.Errorf("tiff: sub-image without a primary image")
		}
		if cfg.SubImages != 0 {
			return nil, fmt.Errorf("tiff: sub-image cannot declare nested sub-images")
		}
	} else if len(w.images) != 0 {
		return nil, fmt.Errorf("tiff: container already has a primary image")
	}

	img := &Image{
		w:       w,
		cfg:     cfg,
		reduced: reduced,
		expect:  tilesAcross(cfg.Width, cfg.TileWidth) * tilesAcross(cfg.Height, cfg.TileHeight) * cfg.SamplesPerPixel,
	}
	w.images = append(w.images, img)
	return img, nil
}

// NewImage starts the primary image entry. Must be called exactly once,
// before any sub-image.
func (w *Writer) NewImage(cfg ImageConfig) (*Image, error) {
	return w.newImage(cfg, false)
}

// NewSubImage starts a reduced-resolution entry linked to the primary image.
func (w *Writer) NewSubImage(cfg ImageConfig) (*Image, error) {
	return w.newImage(cfg, true)
}

func tilesAcross(extent, tile int) int {
	return (extent + tile - 1) / tile
}

// AppendTile compresses (if configured) and writes the next tile payload.
// raw holds the tile's samples encoded in the file byte order. Edge tiles
// are stored clipped: the byte count reflects the real payload, no padding
// to the nominal tile size.
func (img *Image) AppendTile(raw []byte) error {
	w := img.w
	if w.closed {
		return fmt.Errorf("tiff: writer is closed")
	}
	if img != w.current() {
		return fmt.Errorf("tiff: image is no longer accepting tiles")
	}
	if len(img.offsets) >= img.expect {
		return fmt.Errorf("tiff: too many tiles: image expects %d", img.expect)
	}

	payload := raw
	if img.cfg.Compression == CompressionDeflate {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, deflateLevel)
		if err != nil {
			return fmt.Errorf("tiff: deflate init: %w", err)
		}
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("tiff: deflate tile: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("tiff: deflate tile: %w", err)
		}
		payload = buf.Bytes()
	}

	if _, err := w.ws.Write(payload); err != nil {
		return fmt.Errorf("tiff: write tile: %w", err)
	}
	img.offsets = append(img.offsets, w.off)
	img.counts = append(img.counts, uint64(len(payload)))
	w.off += uint64(len(payload))

	// Keep value offsets even, as the format recommends.
	if len(payload)%2 != 0 {
		if _, err := w.ws.Write([]byte{0}); err != nil {
			return fmt.Errorf("tiff: write tile padding: %w", err)
		}
		w.off++
	}
	return nil
}

// entries builds the IFD field list for one image. subIFDOffsets carries the
// resolved file offsets of the linked sub-images, primary image only.
func (w *Writer) entries(img *Image, subIFDOffsets []uint64) ([]entry, error) {
	cfg := img.cfg

	subfile := uint32(subfileTypePrimary)
	if img.reduced {
		subfile = subfileTypeReducedImage
	}

	bits := make([]uint16, cfg.SamplesPerPixel)
	formats := make([]uint16, cfg.SamplesPerPixel)
	for i := range bits {
		bits[i] = uint16(cfg.BitsPerSample)
		formats[i] = sampleFormatUnsigned
	}

	offsets, err := w.entryOffsets(tagTileOffsets, img.offsets)
	if err != nil {
		return nil, err
	}
	counts, err := w.entryOffsets(tagTileByteCounts, img.counts)
	if err != nil {
		return nil, err
	}

	es := []entry{
		w.entryLongs(tagNewSubfileType, subfile),
		w.entryLongs(tagImageWidth, uint32(cfg.Width)),
		w.entryLongs(tagImageLength, uint32(cfg.Height)),
		w.entryShorts(tagBitsPerSample, bits...),
		w.entryShorts(tagCompression, uint16(cfg.Compression)),
		w.entryShorts(tagPhotometric, photometricMinIsBlack),
		w.entryShorts(tagSamplesPerPixel, uint16(cfg.SamplesPerPixel)),
		w.entryShorts(tagPlanarConfig, planarConfigSeparate),
		w.entryLongs(tagTileWidth, uint32(cfg.TileWidth)),
		w.entryLongs(tagTileLength, uint32(cfg.TileHeight)),
		offsets,
		counts,
		w.entryShorts(tagSampleFormat, formats...),
	}
	if cfg.Description != "" {
		es = append(es, entryASCII(tagImageDescription, cfg.Description))
	}
	if cfg.Software != "" {
		es = append(es, entryASCII(tagSoftware, cfg.Software))
	}
	if len(subIFDOffsets) > 0 {
		if w.big {
			es = append(es, w.entryLong8s(tagSubIFDs, typeIFD8, subIFDOffsets...))
		} else {
			sub, err := w.entryOffsets(tagSubIFDs, subIFDOffsets)
			if err != nil {
				return nil, err
			}
			es = append(es, sub)
		}
	}
	return es, nil
}

// Close writes the IFD chain after the tile data and patches the header's
// first-IFD offset. The writer cannot be used afterwards; closing an
// incomplete image is an error and leaves the container unfinished.
func (w *Writer) Close() error {
	if w.closed {
		return fmt.Errorf("tiff: writer already closed")
	}
	if len(w.images) == 0 {
		return fmt.Errorf("tiff: container has no image")
	}
	primary := w.images[0]
	if declared, got := primary.cfg.SubImages, len(w.images)-1; declared != got {
		return fmt.Errorf("tiff: primary image declares %d sub-images, %d written", declared, got)
	}
	if cur := w.current(); len(cur.offsets) != cur.expect {
		return fmt.Errorf("tiff: image incomplete: %d of %d tiles appended", len(cur.offsets), cur.expect)
	}
	w.closed = true

	// Lay the IFDs out back to back, primary first, to resolve the SubIFD
	// link offsets before encoding. Entry counts and value sizes do not
	// depend on the offsets, so sizes computed with placeholder offsets
	// stay valid.
	bases := make([]uint64, len(w.images))
	base := w.off
	for i, img := range w.images {
		es, err := w.entries(img, placeholderOffsets(i, primary.cfg.SubImages))
		if err != nil {
			return err
		}
		bases[i] = base
		base += w.ifdSize(es)
	}

	for i, img := range w.images {
		var subs []uint64
		if i == 0 && len(w.images) > 1 {
			subs = bases[1:]
		}
		es, err := w.entries(img, subs)
		if err != nil {
			return err
		}
		block, err := w.encodeIFD(es, bases[i], 0)
		if err != nil {
			return err
		}
		if _, err := w.ws.Write(block); err != nil {
			return fmt.Errorf("tiff: write IFD %d: %w", i, err)
		}
		w.off += uint64(len(block))
	}

	// Patch the first-IFD offset in the header.
	var patch []byte
	var pos int64
	if w.big {
		patch = w.put64(nil, bases[0])
		pos = 8
	} else {
		if bases[0] > maxUint32 {
			return fmt.Errorf("tiff: IFD offset %d exceeds 32-bit classic TIFF addressing, enable BigTIFF", bases[0])
		}
		patch = w.put32(nil, uint32(bases[0]))
		pos = 4
	}
	if _, err := w.ws.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("tiff: seek to header: %w", err)
	}
	if _, err := w.ws.Write(patch); err != nil {
		return fmt.Errorf("tiff: patch header: %w", err)
	}
	if _, err := w.ws.Seek(int64(w.off), io.SeekStart); err != nil {
		return fmt.Errorf("tiff: seek past IFD chain: %w", err)
	}
	return nil
}

// placeholderOffsets keeps the primary IFD's entry layout stable between the
// sizing and encoding passes.
func placeholderOffsets(imageIdx, subImages int) []uint64 {
	if imageIdx != 0 || subImages == 0 {
		return nil
	}
	return make([]uint64, subImages)
}
