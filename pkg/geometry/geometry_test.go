package geometry

import (
	"bytes"
	"reflect"
	"strconv"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func annotationCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	poly := geojson.NewFeature(orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
	})
	poly.Properties["name"] = "tumor"
	poly.Properties["classification"] = map[string]interface{}{
		"name":  "Tumor",
		"color": []interface{}{float64(200), float64(0), float64(0)},
	}
	fc.Append(poly)

	point := geojson.NewFeature(orb.Point{5, 7})
	point.Properties["name"] = ""
	fc.Append(point)

	mls := geojson.NewFeature(orb.MultiLineString{
		{{0, 0}, {1, 1}},
		{{2, 2}, {3, 3}, {4, 4}},
	})
	fc.Append(mls)

	return fc
}

func TestExportPointsStructure(t *testing.T) {
	table, err := ExportPoints(annotationCollection())
	if err != nil {
		t.Fatalf("ExportPoints failed: %v", err)
	}

	// 5 exterior + 4 interior polygon vertices, 1 point, 5 line vertices.
	if len(table.Rows) != 15 {
		t.Fatalf("got %d rows, want 15", len(table.Rows))
	}

	interior := 0
	for _, r := range table.Rows {
		if r.Ring == RingInterior {
			interior++
			if r.RowID != 0 || r.InteriorID != 0 {
				t.Errorf("interior row has RowID %d InteriorID %d", r.RowID, r.InteriorID)
			}
		}
	}
	if interior != 4 {
		t.Errorf("got %d interior rows, want 4", interior)
	}

	// Classification explodes into flat columns.
	first := table.Rows[0]
	if first.Meta["classification_name"] != "Tumor" {
		t.Errorf("classification_name = %q", first.Meta["classification_name"])
	}
	if first.Meta["classification_color_r"] != "200" {
		t.Errorf("classification_color_r = %q", first.Meta["classification_color_r"])
	}

	// The second line of the MultiLineString keeps its own part index.
	last := table.Rows[len(table.Rows)-1]
	if last.GeometryType != "MultiLineString" || last.PolygonID != 1 {
		t.Errorf("last row = %+v", last)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	table, err := ExportPoints(annotationCollection())
	if err != nil {
		t.Fatalf("ExportPoints failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if !reflect.DeepEqual(back.MetaColumns, table.MetaColumns) {
		t.Errorf("meta columns = %v, want %v", back.MetaColumns, table.MetaColumns)
	}
	if len(back.Rows) != len(table.Rows) {
		t.Fatalf("got %d rows, want %d", len(back.Rows), len(table.Rows))
	}
	for i := range table.Rows {
		if !reflect.DeepEqual(back.Rows[i], table.Rows[i]) {
			t.Fatalf("row %d = %+v, want %+v", i, back.Rows[i], table.Rows[i])
		}
	}
}

func TestRebuildGeometries(t *testing.T) {
	fc := annotationCollection()
	table, err := ExportPoints(fc)
	if err != nil {
		t.Fatalf("ExportPoints failed: %v", err)
	}

	rebuilt, err := RebuildGeometries(table, "x", "y")
	if err != nil {
		t.Fatalf("RebuildGeometries failed: %v", err)
	}
	if len(rebuilt.Features) != len(fc.Features) {
		t.Fatalf("got %d features, want %d", len(rebuilt.Features), len(fc.Features))
	}
	for i := range fc.Features {
		if !reflect.DeepEqual(rebuilt.Features[i].Geometry, fc.Features[i].Geometry) {
			t.Errorf("feature %d geometry = %v, want %v",
				i, rebuilt.Features[i].Geometry, fc.Features[i].Geometry)
		}
	}

	// Classification folds back into the nested property.
	c, ok := rebuilt.Features[0].Properties["classification"].(map[string]interface{})
	if !ok {
		t.Fatal("polygon feature lost its classification")
	}
	if c["name"] != "Tumor" {
		t.Errorf("classification name = %v", c["name"])
	}
	if color, _ := c["color"].([]int); len(color) != 3 || color[0] != 200 {
		t.Errorf("classification color = %v", c["color"])
	}
	if _, leaked := rebuilt.Features[0].Properties["classification_name"]; leaked {
		t.Error("flattened classification column leaked into properties")
	}

	// An empty name becomes a placeholder.
	if rebuilt.Features[1].Properties["name"] != "Annotation" {
		t.Errorf("empty name = %v, want Annotation", rebuilt.Features[1].Properties["name"])
	}
}

func TestRebuildFromWarpedColumns(t *testing.T) {
	table, err := ExportPoints(annotationCollection())
	if err != nil {
		t.Fatalf("ExportPoints failed: %v", err)
	}

	// Simulate a warping tool appending shifted coordinate columns.
	cols := append(append([]string{}, table.MetaColumns...), "x_t", "y_t")
	for i, r := range table.Rows {
		meta := make(map[string]string, len(r.Meta)+2)
		for k, v := range r.Meta {
			meta[k] = v
		}
		meta["x_t"] = strconv.FormatFloat(r.X+100, 'f', -1, 64)
		meta["y_t"] = strconv.FormatFloat(r.Y-50, 'f', -1, 64)
		table.Rows[i].Meta = meta
	}
	table.MetaColumns = cols

	rebuilt, err := RebuildGeometries(table, "x_t", "y_t")
	if err != nil {
		t.Fatalf("RebuildGeometries failed: %v", err)
	}

	pt, ok := rebuilt.Features[1].Geometry.(orb.Point)
	if !ok {
		t.Fatalf("feature 1 is %T, want Point", rebuilt.Features[1].Geometry)
	}
	if pt[0] != 105 || pt[1] != -43 {
		t.Errorf("warped point = %v, want (105, -43)", pt)
	}

	// Coordinate columns do not leak into rebuilt properties.
	if _, leaked := rebuilt.Features[1].Properties["x_t"]; leaked {
		t.Error("warped coordinate column leaked into properties")
	}

	// Rebuilding from a missing column fails.
	if _, err := RebuildGeometries(table, "x_missing", "y_t"); err == nil {
		t.Error("RebuildGeometries succeeded with a missing coordinate column")
	}
}
