package zarr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"omepyramid/pkg/plane"
)

// The attribute schema carrying physical calibration varies between
// producers. Three layouts are recognized, tried in order:
//
//  1. "pixel_size_um": [y, x], micrometers directly.
//  2. "pixel_size": {"y": .., "x": .., "unit": "mm"|"um"}; millimeters are
//     scaled x1000, the one supported non-micrometer unit.
//  3. OME-NGFF "multiscales" with named axes and a first-dataset scale
//     transformation, axis units "millimeter" or "micrometer".
//
// Anything absent, malformed or non-positive yields no calibration rather
// than an error; the container is then written uncalibrated.
type attrs struct {
	PixelSizeUM []float64 `json:"pixel_size_um"`

	PixelSize *struct {
		Y    float64 `json:"y"`
		X    float64 `json:"x"`
		Unit string  `json:"unit"`
	} `json:"pixel_size"`

	Multiscales []struct {
		Axes []struct {
			Name string `json:"name"`
			Unit string `json:"unit"`
		} `json:"axes"`
		Datasets []struct {
			CoordinateTransformations []struct {
				Type  string    `json:"type"`
				Scale []float64 `json:"scale"`
			} `json:"coordinateTransformations"`
		} `json:"datasets"`
	} `json:"multiscales"`
}

// PixelSize derives the optional (y, x) physical pixel size in micrometers
// from the array's .zattrs document, falling back to the parent group's.
func (s *Store) PixelSize() *plane.PixelSize {
	for _, dir := range []string{s.path, filepath.Dir(s.path)} {
		raw, err := os.ReadFile(filepath.Join(dir, ".zattrs"))
		if err != nil {
			continue
		}
		var a attrs
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		if ps := a.pixelSize(); ps != nil {
			return ps
		}
	}
	return nil
}

func calibration(y, x float64) *plane.PixelSize {
	if y <= 0 || x <= 0 {
		return nil
	}
	return &plane.PixelSize{Y: y, X: x}
}

func (a *attrs) pixelSize() *plane.PixelSize {
	if len(a.PixelSizeUM) == 2 {
		return calibration(a.PixelSizeUM[0], a.PixelSizeUM[1])
	}

	if a.PixelSize != nil {
		y, x := a.PixelSize.Y, a.PixelSize.X
		switch strings.ToLower(a.PixelSize.Unit) {
		case "mm", "millimeter", "millimetre":
			y *= 1000
			x *= 1000
		case "um", "µm", "micrometer", "micrometre", "micron", "":
			// already micrometers
		default:
			return nil
		}
		return calibration(y, x)
	}

	for _, ms := range a.Multiscales {
		if len(ms.Datasets) == 0 {
			continue
		}
		for _, tr := range ms.Datasets[0].CoordinateTransformations {
			if tr.Type != "scale" || len(tr.Scale) != len(ms.Axes) {
				continue
			}
			var y, x float64
			for i, ax := range ms.Axes {
				v := tr.Scale[i]
				switch strings.ToLower(ax.Unit) {
				case "mm", "millimeter", "millimetre":
					v *= 1000
				case "um", "µm", "micrometer", "micrometre", "micron", "":
				default:
					continue
				}
				switch ax.Name {
				case "y":
					y = v
				case "x":
					x = v
				}
			}
			if ps := calibration(y, x); ps != nil {
				return ps
			}
		}
	}
	return nil
}
