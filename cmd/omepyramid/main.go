package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"omepyramid/pkg/config"
	"omepyramid/pkg/geometry"
	"omepyramid/pkg/plane"
	"omepyramid/pkg/pyramid"
	"omepyramid/pkg/tiff"
	"omepyramid/pkg/zarr"
)

const defaultConfig = "omepyramid.yaml"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(io.Discard, "", log.LstdFlags)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func main() {
	app := cli.NewApp()

	app.Name = "omepyramid"
	app.Usage = "Pyramidal OME-TIFF writing utility"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			EnvVars: []string{"OMEPYRAMID_CONFIG"},
			Value:   defaultConfig,
			Usage:   "path to configuration file",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "write",
			Usage:       "Write a chunked array store as a pyramidal container",
			Description: "",
			ArgsUsage:   "STORE OUTPUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "tile-size",
					Usage: "tile edge length in pixels",
				},
				&cli.IntFlag{
					Name:  "levels",
					Usage: "number of resolution levels",
				},
				&cli.StringFlag{
					Name:  "compression",
					Usage: "tile compression: none or deflate",
				},
				&cli.StringFlag{
					Name:  "method",
					Usage: "downsampling method: mean or decimate",
				},
				&cli.BoolFlag{
					Name:  "classic",
					Usage: "write a classic container instead of BigTIFF",
				},
				&cli.StringSliceFlag{
					Name:  "channel-name",
					Usage: "channel name, repeat once per channel",
				},
				&cli.Float64SliceFlag{
					Name:  "pixel-size",
					Usage: "physical pixel size as two values, Y then X, in micrometers",
				},
				&cli.BoolFlag{
					Name:  "stats",
					Usage: "log per-channel intensity statistics before writing",
				},
			},
			Action: writeAction,
		},
		{
			Name:        "info",
			Usage:       "Summarize the structure of a written container",
			Description: "",
			ArgsUsage:   "FILE",
			Action:      infoAction,
		},
		{
			Name:        "init",
			Usage:       "Write a default configuration file",
			Description: "",
			Action: func(c *cli.Context) error {
				if err := config.CreateDefaultConfigFile(c.String("config")); err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Printf("Wrote default configuration to %s\n", c.String("config"))
				return nil
			},
		},
		{
			Name:  "geometry",
			Usage: "Convert annotation geometries to and from point tables",
			Subcommands: []*cli.Command{
				{
					Name:        "export",
					Usage:       "Export GeoJSON geometry vertices as a point table",
					Description: "",
					ArgsUsage:   "GEOJSON CSV",
					Action:      geometryExportAction,
				},
				{
					Name:        "rebuild",
					Usage:       "Rebuild GeoJSON geometries from a transformed point table",
					Description: "",
					ArgsUsage:   "CSV GEOJSON",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "x-col",
							Value: "x",
							Usage: "column holding transformed X coordinates",
						},
						&cli.StringFlag{
							Name:  "y-col",
							Value: "y",
							Usage: "column holding transformed Y coordinates",
						},
					},
					Action: geometryRebuildAction,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func writeAction(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}
	logger := newLogger(c)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if c.IsSet("tile-size") {
		cfg.Write.TileSize = c.Int("tile-size")
	}
	if c.IsSet("levels") {
		cfg.Write.Levels = c.Int("levels")
	}
	if c.IsSet("compression") {
		cfg.Write.Compression = c.String("compression")
	}
	if c.IsSet("method") {
		cfg.Write.Method = c.String("method")
	}
	if c.IsSet("classic") {
		cfg.Write.ClassicTIFF = c.Bool("classic")
	}
	if c.IsSet("channel-name") {
		cfg.Calibration.ChannelNames = c.StringSlice("channel-name")
	}
	if c.IsSet("pixel-size") {
		cfg.Calibration.PixelSizeUM = c.Float64Slice("pixel-size")
	}
	stats := c.Bool("stats") || cfg.Output.Stats

	method, err := pyramid.ParseMethod(cfg.Write.Method)
	if err != nil {
		return cli.Exit(err, 1)
	}
	compression, err := tiff.ParseCompression(cfg.Write.Compression)
	if err != nil {
		return cli.Exit(err, 1)
	}

	store, err := zarr.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	h, w := store.Bounds()
	logger.Printf("opened store: %d channel(s), %dx%d, %s", store.Channels(), h, w, store.DType())

	opts := pyramid.Options{
		ChannelNames: cfg.Calibration.ChannelNames,
		Compression:  compression,
		TileSize:     cfg.Write.TileSize,
		Levels:       cfg.Write.Levels,
		Method:       method,
		ClassicTIFF:  cfg.Write.ClassicTIFF,
		Progress: func(ev pyramid.ProgressEvent) {
			logger.Printf("level %d channel %d: tile %d/%d", ev.Level, ev.Channel, ev.TileIndex, ev.TileCount)
		},
	}
	switch ps := cfg.Calibration.PixelSizeUM; {
	case len(ps) == 2:
		opts.PixelSize = &plane.PixelSize{Y: ps[0], X: ps[1]}
	case len(ps) != 0:
		return cli.Exit(fmt.Errorf("pixel size needs exactly two values, got %d", len(ps)), 1)
	default:
		opts.PixelSize = store.PixelSize()
	}

	output := c.Args().Get(1)
	var werr error
	switch store.DType() {
	case plane.DTypeUint8:
		stack, err := store.Uint8()
		if err != nil {
			return cli.Exit(err, 1)
		}
		werr = writePyramid(stack, output, opts, logger, stats)
	case plane.DTypeUint16:
		stack, err := store.Uint16()
		if err != nil {
			return cli.Exit(err, 1)
		}
		werr = writePyramid(stack, output, opts, logger, stats)
	default:
		werr = fmt.Errorf("unsupported element type %s", store.DType())
	}
	if werr != nil {
		return cli.Exit(werr, 1)
	}

	fmt.Printf("Wrote %d-level pyramid to %s\n", opts.Levels, output)
	return nil
}

func writePyramid[T plane.Pixel](stack plane.Stack[T], output string, opts pyramid.Options, logger *log.Logger, stats bool) error {
	if stats {
		for c := 0; c < stack.Channels(); c++ {
			p, err := stack.Materialize(c)
			if err != nil {
				return err
			}
			s := pyramid.PlaneStats(p)
			logger.Printf("channel %d: min %g max %g mean %.2f stddev %.2f", c, s.Min, s.Max, s.Mean, s.StdDev)
		}
	}
	return pyramid.Write(stack, output, opts)
}

func infoAction(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	info, err := tiff.ReadInfo(c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}

	kind := "classic"
	if info.BigTIFF {
		kind = "BigTIFF"
	}
	fmt.Printf("%s container, %d image entries\n", kind, len(info.Images))
	for i, img := range info.Images {
		role := "primary"
		if img.Reduced() {
			role = "reduced"
		}
		fmt.Printf("  level %d (%s): %dx%d, %d-bit, %d tile(s) of %dx%d, compression %s\n",
			i, role, img.Width, img.Height, img.BitsPerSample,
			img.Tiles, img.TileWidth, img.TileHeight, img.Compression)
	}
	if sw := info.Images[0].Software; sw != "" {
		fmt.Printf("  written by %s\n", sw)
	}
	return nil
}

func geometryExportAction(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	fc, err := geometry.ReadGeoJSON(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	table, err := geometry.ExportPoints(fc)
	if err != nil {
		return cli.Exit(err, 1)
	}

	f, err := os.Create(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := geometry.WriteCSV(f, table); err != nil {
		f.Close()
		return cli.Exit(err, 1)
	}
	if err := f.Close(); err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("Exported %d vertices from %d geometries to %s\n",
		len(table.Rows), len(fc.Features), c.Args().Get(1))
	return nil
}

func geometryRebuildAction(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	f, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	table, err := geometry.ReadCSV(f)
	f.Close()
	if err != nil {
		return cli.Exit(err, 1)
	}

	fc, err := geometry.RebuildGeometries(table, c.String("x-col"), c.String("y-col"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := geometry.WriteGeoJSON(c.Args().Get(1), fc); err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("Rebuilt %d geometries to %s\n", len(fc.Features), c.Args().Get(1))
	return nil
}
