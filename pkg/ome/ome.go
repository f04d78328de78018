// Package ome assembles the structured metadata block embedded in the
// pyramidal container: creator identification, physical pixel calibration
// and per-channel names, rendered as an OME-style XML document.
package ome

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"

	"omepyramid/pkg/plane"
)

// Version is the tool version recorded in the metadata block.
const Version = "1.0.0"

// Creator is the fixed creator/tool identifier written to every container.
const Creator = "omepyramid " + Version

// ErrChannelCountMismatch reports a channel-name list whose length differs
// from the stack's channel count.
var ErrChannelCountMismatch = errors.New("channel name count mismatch")

// Metadata is the structured metadata record for one image. It is built
// once per write and is immutable afterwards.
type Metadata struct {
	Creator      string
	ChannelCount int

	// ChannelNames holds one name per channel, or nil when the caller
	// supplied none.
	ChannelNames []string

	// PhysicalSizeX/Y are decimal strings in micrometers, empty when no
	// calibration was supplied. The unit tags are fixed to "µm".
	PhysicalSizeX     string
	PhysicalSizeY     string
	PhysicalSizeXUnit string
	PhysicalSizeYUnit string
}

// Build assembles the metadata record. Pure and deterministic: no I/O, the
// same inputs always produce the same record.
func Build(channelCount int, channelNames []string, ps *plane.PixelSize) (*Metadata, error) {
	if channelCount < 1 {
		return nil, fmt.Errorf("%w: %d channels", plane.ErrInvalidParameter, channelCount)
	}
	if channelNames != nil && len(channelNames) != channelCount {
		return nil, fmt.Errorf("%w: %d names for %d channels",
			ErrChannelCountMismatch, len(channelNames), channelCount)
	}

	md := &Metadata{
		Creator:      Creator,
		ChannelCount: channelCount,
	}
	if channelNames != nil {
		md.ChannelNames = append([]string(nil), channelNames...)
	}
	if ps != nil {
		if !ps.Valid() {
			return nil, fmt.Errorf("%w: pixel size (%g, %g) µm", plane.ErrInvalidParameter, ps.Y, ps.X)
		}
		md.PhysicalSizeX = formatSize(ps.X)
		md.PhysicalSizeY = formatSize(ps.Y)
		md.PhysicalSizeXUnit = "µm"
		md.PhysicalSizeYUnit = "µm"
	}
	return md, nil
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// XML schema of the rendered block. Attribute order follows struct order,
// keeping the output deterministic.
type xmlChannel struct {
	XMLName xml.Name `xml:"Channel"`
	ID      string   `xml:"ID,attr"`
	Name    string   `xml:"Name,attr,omitempty"`
}

type xmlPixels struct {
	XMLName           xml.Name `xml:"Pixels"`
	ID                string   `xml:"ID,attr"`
	DimensionOrder    string   `xml:"DimensionOrder,attr"`
	Type              string   `xml:"Type,attr"`
	SizeX             int      `xml:"SizeX,attr"`
	SizeY             int      `xml:"SizeY,attr"`
	SizeZ             int      `xml:"SizeZ,attr"`
	SizeC             int      `xml:"SizeC,attr"`
	SizeT             int      `xml:"SizeT,attr"`
	PhysicalSizeX     string   `xml:"PhysicalSizeX,attr,omitempty"`
	PhysicalSizeXUnit string   `xml:"PhysicalSizeXUnit,attr,omitempty"`
	PhysicalSizeY     string   `xml:"PhysicalSizeY,attr,omitempty"`
	PhysicalSizeYUnit string   `xml:"PhysicalSizeYUnit,attr,omitempty"`
	Channels          []xmlChannel
}

type xmlImage struct {
	XMLName xml.Name `xml:"Image"`
	ID      string   `xml:"ID,attr"`
	Pixels  xmlPixels
}

type xmlOME struct {
	XMLName xml.Name `xml:"OME"`
	XMLNS   string   `xml:"xmlns,attr"`
	Creator string   `xml:"Creator,attr"`
	Image   xmlImage
}

const omeNamespace = "http://www.openmicroscopy.org/Schemas/OME/2016-06"

// OMEXML renders the metadata block for a sizeX by sizeY image of the given
// element type, suitable for the primary image description of the container.
func (md *Metadata) OMEXML(sizeX, sizeY int, dtype plane.DType) (string, error) {
	doc := xmlOME{
		XMLNS:   omeNamespace,
		Creator: md.Creator,
		Image: xmlImage{
			ID: "Image:0",
			Pixels: xmlPixels{
				ID:                "Pixels:0",
				DimensionOrder:    "XYCZT",
				Type:              dtype.String(),
				SizeX:             sizeX,
				SizeY:             sizeY,
				SizeZ:             1,
				SizeC:             md.ChannelCount,
				SizeT:             1,
				PhysicalSizeX:     md.PhysicalSizeX,
				PhysicalSizeXUnit: md.PhysicalSizeXUnit,
				PhysicalSizeY:     md.PhysicalSizeY,
				PhysicalSizeYUnit: md.PhysicalSizeYUnit,
			},
		},
	}
	for c := 0; c < md.ChannelCount; c++ {
		ch := xmlChannel{ID: fmt.Sprintf("Channel:0:%d", c)}
		if md.ChannelNames != nil {
			ch.Name = md.ChannelNames[c]
		}
		doc.Image.Pixels.Channels = append(doc.Image.Pixels.Channels, ch)
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("ome: marshal metadata: %w", err)
	}
	return xml.Header + string(out), nil
}
