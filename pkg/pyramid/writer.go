package pyramid

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"omepyramid/pkg/ome"
	"omepyramid/pkg/plane"
	"omepyramid/pkg/tiff"
	"omepyramid/pkg/tiling"
)

// ProgressEvent reports one appended tile. Delivered synchronously from the
// writing goroutine; callbacks should be fast.
type ProgressEvent struct {
	Level     int
	Channel   int
	TileIndex int // 1-based index within the current (level, channel) plane
	TileCount int // total tiles of the current (level, channel) plane
}

// Options configures one pyramid write.
type Options struct {
	// ChannelNames, when non-nil, must have exactly one name per stack
	// channel.
	ChannelNames []string

	// PixelSize is the optional physical calibration in micrometers.
	PixelSize *plane.PixelSize

	// Compression applied to every tile. Defaults to none.
	Compression tiff.Compression

	// TileSize is the nominal square tile edge in pixels. Required, > 0.
	TileSize int

	// Levels is the total number of pyramid levels including the
	// full-resolution base. Required, >= 1. Not clamped: callers asking for
	// more levels than the image can support get repeated 1x1 levels.
	Levels int

	// Method selects the downsampling filter for levels above the base.
	Method Method

	// Progress, when non-nil, receives one event per appended tile.
	Progress func(ProgressEvent)

	// ClassicTIFF disables 64-bit BigTIFF addressing. Only safe for outputs
	// well under 4 GiB; the default BigTIFF layout is always safe.
	ClassicTIFF bool
}

// WriteError reports a failure while streaming tiles, carrying the pyramid
// level and channel that were in progress. The destination file is left in
// an incomplete state that the caller must treat as invalid.
type WriteError struct {
	Level   int
	Channel int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("pyramid: writing level %d channel %d: %v", e.Level, e.Channel, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Write streams stack into a pyramidal tiled container at path: one
// full-resolution base image plus Levels-1 progressively 2x-downsampled
// sub-resolution images, each re-tiled to TileSize and linked to the base.
//
// Channels are written in index order within each level, tiles in row-major
// scan order within each channel. Every (level, channel) pair materializes
// its own full-resolution plane from the stack before downsampling, so peak
// memory stays bounded by one single-channel plane regardless of stack size.
//
// All parameter validation happens before the destination file is created;
// no partial output is produced by parameter errors.
func Write[T plane.Pixel](stack plane.Stack[T], path string, opts Options) error {
	if stack == nil {
		return fmt.Errorf("%w: nil stack", plane.ErrInvalidParameter)
	}
	channels := stack.Channels()
	if channels < 1 {
		return fmt.Errorf("%w: stack has %d channels", plane.ErrUnsupportedShape, channels)
	}
	h0, w0 := stack.Bounds()
	if h0 < 1 || w0 < 1 {
		return fmt.Errorf("%w: stack bounds %dx%d", plane.ErrUnsupportedShape, h0, w0)
	}
	if opts.TileSize < 1 {
		return fmt.Errorf("%w: tile size %d", plane.ErrInvalidParameter, opts.TileSize)
	}
	if opts.Levels < 1 {
		return fmt.Errorf("%w: level count %d", plane.ErrInvalidParameter, opts.Levels)
	}
	if opts.Method != BlockMean && opts.Method != Decimate {
		return fmt.Errorf("%w: downsample method %d", plane.ErrInvalidParameter, int(opts.Method))
	}
	compression := opts.Compression
	if compression == 0 {
		compression = tiff.CompressionNone
	}
	if compression != tiff.CompressionNone && compression != tiff.CompressionDeflate {
		return fmt.Errorf("%w: compression %d", plane.ErrInvalidParameter, uint16(compression))
	}

	md, err := ome.Build(channels, opts.ChannelNames, opts.PixelSize)
	if err != nil {
		return err
	}
	dtype := plane.DTypeOf[T]()
	description, err := md.OMEXML(w0, h0, dtype)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("pyramid: create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pyramid: create output file: %w", err)
	}

	// From here on any failure leaves a partial container behind; wrap it
	// with the level/channel in progress and close the file as-is.
	fail := func(level, channel int, err error) error {
		f.Close()
		return &WriteError{Level: level, Channel: channel, Err: err}
	}

	tw, err := tiff.Create(f, tiff.Config{BigTIFF: !opts.ClassicTIFF})
	if err != nil {
		return fail(0, 0, err)
	}

	for level := 0; level < opts.Levels; level++ {
		lh, lw := LevelShape(h0, w0, level)
		cfg := tiff.ImageConfig{
			Width:           lw,
			Height:          lh,
			TileWidth:       opts.TileSize,
			TileHeight:      opts.TileSize,
			SamplesPerPixel: channels,
			BitsPerSample:   dtype.Bits(),
			Compression:     compression,
			Software:        ome.Creator,
		}

		var img *tiff.Image
		if level == 0 {
			cfg.Description = description
			cfg.SubImages = opts.Levels - 1
			img, err = tw.NewImage(cfg)
		} else {
			img, err = tw.NewSubImage(cfg)
		}
		if err != nil {
			return fail(level, 0, err)
		}

		for c := 0; c < channels; c++ {
			full, err := stack.Materialize(c)
			if err != nil {
				return fail(level, c, err)
			}
			if full.H != h0 || full.W != w0 || len(full.Pix) != full.H*full.W {
				return fail(level, c, fmt.Errorf("%w: channel %d materialized as %dx%d, stack bounds %dx%d",
					plane.ErrUnsupportedShape, c, full.H, full.W, h0, w0))
			}

			reduced, err := Downsample(full, LevelFactor(level), opts.Method)
			if err != nil {
				return fail(level, c, err)
			}

			cursor, err := tiling.NewCursor(reduced, opts.TileSize, opts.TileSize)
			if err != nil {
				return fail(level, c, err)
			}
			total := cursor.Len()
			for i := 1; ; i++ {
				tile, ok := cursor.Next()
				if !ok {
					break
				}
				if err := img.AppendTile(tile.Plane.Bytes(binary.LittleEndian)); err != nil {
					return fail(level, c, err)
				}
				if opts.Progress != nil {
					opts.Progress(ProgressEvent{Level: level, Channel: c, TileIndex: i, TileCount: total})
				}
			}
		}
	}

	if err := tw.Close(); err != nil {
		return fail(opts.Levels-1, channels-1, err)
	}
	if err := f.Close(); err != nil {
		return fail(opts.Levels-1, channels-1, fmt.Errorf("close output file: %w", err))
	}
	return nil
}
