// Package geometry converts annotation geometries between GeoJSON feature
// collections and a flat per-vertex point table. The table format feeds
// external landmark-warping tools that transform loose (x, y) point lists:
// every vertex becomes one CSV row carrying enough structure (feature index,
// ring kind, polygon and interior indices) to reassemble the original
// geometries after the coordinates have been rewritten.
package geometry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Ring kind markers stored in the "coords" column.
const (
	RingExterior = "coords"
	RingInterior = "interior_coords"
)

// Row is one vertex of one feature.
type Row struct {
	RowID        int
	GeometryType string
	X, Y         float64
	Ring         string
	PolygonID    int
	// InteriorID indexes the interior ring within its polygon, -1 for
	// exterior vertices.
	InteriorID int
	// Meta holds the feature's flattened properties as strings, shared by
	// all rows of the feature.
	Meta map[string]string
}

// Table is the long-format point table for one feature collection.
type Table struct {
	// MetaColumns lists the metadata column names in output order.
	MetaColumns []string
	Rows        []Row
}

// ExportPoints flattens a feature collection into a point table. Nested
// "classification" properties (QuPath style) are exploded into
// classification_name and classification_color_r/g/b columns so downstream
// tools see only scalar cells.
func ExportPoints(fc *geojson.FeatureCollection) (*Table, error) {
	t := &Table{}
	cols := make(map[string]bool)

	for rowID, f := range fc.Features {
		meta := flattenProperties(f.Properties)
		for k := range meta {
			cols[k] = true
		}
		gt := f.Geometry.GeoJSONType()

		emit := func(ring string, polyID, interiorID int, pts []orb.Point) {
			for _, p := range pts {
				t.Rows = append(t.Rows, Row{
					RowID:        rowID,
					GeometryType: gt,
					X:            p[0],
					Y:            p[1],
					Ring:         ring,
					PolygonID:    polyID,
					InteriorID:   interiorID,
					Meta:         meta,
				})
			}
		}

		switch g := f.Geometry.(type) {
		case orb.Point:
			emit(RingExterior, 0, -1, []orb.Point{g})
		case orb.MultiPoint:
			for i, p := range g {
				emit(RingExterior, i, -1, []orb.Point{p})
			}
		case orb.LineString:
			emit(RingExterior, 0, -1, g)
		case orb.MultiLineString:
			for i, ls := range g {
				emit(RingExterior, i, -1, ls)
			}
		case orb.Polygon:
			emitPolygon(emit, 0, g)
		case orb.MultiPolygon:
			for i, poly := range g {
				emitPolygon(emit, i, poly)
			}
		default:
			return nil, fmt.Errorf("geometry: unsupported geometry type %s", gt)
		}
	}

	t.MetaColumns = make([]string, 0, len(cols))
	for k := range cols {
		t.MetaColumns = append(t.MetaColumns, k)
	}
	sort.Strings(t.MetaColumns)

	// Every row carries every column, so the table round-trips through CSV
	// without losing which cells were empty.
	for _, r := range t.Rows {
		for _, col := range t.MetaColumns {
			if _, ok := r.Meta[col]; !ok {
				r.Meta[col] = ""
			}
		}
	}
	return t, nil
}

func emitPolygon(emit func(string, int, int, []orb.Point), polyID int, poly orb.Polygon) {
	if len(poly) == 0 {
		return
	}
	emit(RingExterior, polyID, -1, poly[0])
	for i, ring := range poly[1:] {
		emit(RingInterior, polyID, i, ring)
	}
}

// RebuildGeometries reassembles a feature collection from a point table,
// reading the transformed coordinates from the xCol and yCol columns ("x"
// and "y" select the table's own coordinate fields; any other name selects
// a metadata column appended by the warping tool). Classification columns
// are folded back into the nested property, and features with a present but
// empty name get "Annotation" so downstream viewers never see a null name.
func RebuildGeometries(t *Table, xCol, yCol string) (*geojson.FeatureCollection, error) {
	var order []int
	groups := make(map[int][]Row)
	for _, r := range t.Rows {
		if _, ok := groups[r.RowID]; !ok {
			order = append(order, r.RowID)
		}
		groups[r.RowID] = append(groups[r.RowID], r)
	}

	fc := geojson.NewFeatureCollection()
	for _, id := range order {
		rows := groups[id]
		geom, err := rebuildGeometry(rows, xCol, yCol)
		if err != nil {
			return nil, fmt.Errorf("geometry: feature %d: %w", id, err)
		}

		f := geojson.NewFeature(geom)
		for k, v := range rows[0].Meta {
			if k == xCol || k == yCol {
				continue
			}
			f.Properties[k] = v
		}
		if name, ok := f.Properties["name"]; ok && name == "" {
			f.Properties["name"] = "Annotation"
		}
		rebuildClassification(f.Properties)
		fc.Append(f)
	}
	return fc, nil
}

func rebuildGeometry(rows []Row, xCol, yCol string) (orb.Geometry, error) {
	pt := func(r Row) (orb.Point, error) {
		x, err := coord(r, xCol)
		if err != nil {
			return orb.Point{}, err
		}
		y, err := coord(r, yCol)
		if err != nil {
			return orb.Point{}, err
		}
		return orb.Point{x, y}, nil
	}

	switch gt := rows[0].GeometryType; gt {
	case "Point":
		return pt(rows[0])

	case "MultiPoint":
		var mp orb.MultiPoint
		for _, r := range rows {
			p, err := pt(r)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil

	case "LineString":
		var ls orb.LineString
		for _, r := range rows {
			p, err := pt(r)
			if err != nil {
				return nil, err
			}
			ls = append(ls, p)
		}
		return ls, nil

	case "MultiLineString":
		var mls orb.MultiLineString
		for _, r := range rows {
			p, err := pt(r)
			if err != nil {
				return nil, err
			}
			for len(mls) <= r.PolygonID {
				mls = append(mls, orb.LineString{})
			}
			mls[r.PolygonID] = append(mls[r.PolygonID], p)
		}
		return mls, nil

	case "Polygon", "MultiPolygon":
		var polys orb.MultiPolygon
		for _, r := range rows {
			p, err := pt(r)
			if err != nil {
				return nil, err
			}
			for len(polys) <= r.PolygonID {
				polys = append(polys, orb.Polygon{orb.Ring{}})
			}
			poly := polys[r.PolygonID]
			if r.Ring == RingInterior {
				for len(poly) <= r.InteriorID+1 {
					poly = append(poly, orb.Ring{})
				}
				poly[r.InteriorID+1] = append(poly[r.InteriorID+1], p)
			} else {
				poly[0] = append(poly[0], p)
			}
			polys[r.PolygonID] = poly
		}
		if gt == "Polygon" {
			return polys[0], nil
		}
		return polys, nil

	default:
		return nil, fmt.Errorf("unsupported geometry type %q", gt)
	}
}

func coord(r Row, col string) (float64, error) {
	switch col {
	case "x":
		return r.X, nil
	case "y":
		return r.Y, nil
	}
	s, ok := r.Meta[col]
	if !ok {
		return 0, fmt.Errorf("missing coordinate column %q", col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad coordinate in column %q: %w", col, err)
	}
	return v, nil
}

// flattenProperties renders a feature's properties as scalar strings,
// exploding a nested classification object (or its JSON-string form) into
// flat name and color columns.
func flattenProperties(props geojson.Properties) map[string]string {
	meta := make(map[string]string, len(props))
	for k, v := range props {
		if k == "classification" {
			if c := asClassification(v); c != nil {
				meta["classification_name"] = c.Name
				meta["classification_color_r"] = strconv.Itoa(c.Color[0])
				meta["classification_color_g"] = strconv.Itoa(c.Color[1])
				meta["classification_color_b"] = strconv.Itoa(c.Color[2])
			}
			continue
		}
		meta[k] = formatValue(v)
	}
	return meta
}

type classification struct {
	Name  string `json:"name"`
	Color [3]int `json:"color"`
}

func asClassification(v interface{}) *classification {
	var raw []byte
	switch c := v.(type) {
	case string:
		raw = []byte(c)
	case map[string]interface{}:
		b, err := json.Marshal(c)
		if err != nil {
			return nil
		}
		raw = b
	default:
		return nil
	}
	var c classification
	if err := json.Unmarshal(raw, &c); err != nil || c.Name == "" {
		return nil
	}
	return &c
}

func rebuildClassification(props geojson.Properties) {
	name, _ := props["classification_name"].(string)
	r := intProp(props, "classification_color_r")
	g := intProp(props, "classification_color_g")
	b := intProp(props, "classification_color_b")
	delete(props, "classification_name")
	delete(props, "classification_color_r")
	delete(props, "classification_color_g")
	delete(props, "classification_color_b")
	if name == "" {
		return
	}
	props["classification"] = map[string]interface{}{
		"name":  name,
		"color": []int{r, g, b},
	}
}

func intProp(props geojson.Properties, key string) int {
	s, _ := props[key].(string)
	v, _ := strconv.Atoi(s)
	return v
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
