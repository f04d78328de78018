package geometry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// Fixed columns preceding the metadata columns in every point table.
var fixedColumns = []string{"row_id", "geometry_type", "x", "y", "coords", "polygon_id", "interior_id"}

// WriteCSV writes the point table with a header row. The interior_id cell is
// left empty for exterior vertices.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, fixedColumns...), t.MetaColumns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("geometry: write header: %w", err)
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		record[0] = strconv.Itoa(r.RowID)
		record[1] = r.GeometryType
		record[2] = strconv.FormatFloat(r.X, 'f', -1, 64)
		record[3] = strconv.FormatFloat(r.Y, 'f', -1, 64)
		record[4] = r.Ring
		record[5] = strconv.Itoa(r.PolygonID)
		if r.InteriorID >= 0 {
			record[6] = strconv.Itoa(r.InteriorID)
		} else {
			record[6] = ""
		}
		for i, col := range t.MetaColumns {
			record[len(fixedColumns)+i] = r.Meta[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("geometry: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a point table. Columns beyond the fixed set, including any
// transformed-coordinate columns a warping tool appended, become metadata
// columns.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("geometry: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, col := range fixedColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("geometry: point table missing column %q", col)
		}
	}
	t := &Table{}
	fixed := make(map[string]bool, len(fixedColumns))
	for _, col := range fixedColumns {
		fixed[col] = true
	}
	for _, col := range header {
		if !fixed[col] {
			t.MetaColumns = append(t.MetaColumns, col)
		}
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("geometry: read row: %w", err)
		}

		var row Row
		if row.RowID, err = strconv.Atoi(record[idx["row_id"]]); err != nil {
			return nil, fmt.Errorf("geometry: line %d: bad row_id: %w", line, err)
		}
		row.GeometryType = record[idx["geometry_type"]]
		if row.X, err = strconv.ParseFloat(record[idx["x"]], 64); err != nil {
			return nil, fmt.Errorf("geometry: line %d: bad x: %w", line, err)
		}
		if row.Y, err = strconv.ParseFloat(record[idx["y"]], 64); err != nil {
			return nil, fmt.Errorf("geometry: line %d: bad y: %w", line, err)
		}
		row.Ring = record[idx["coords"]]
		if row.PolygonID, err = strconv.Atoi(record[idx["polygon_id"]]); err != nil {
			return nil, fmt.Errorf("geometry: line %d: bad polygon_id: %w", line, err)
		}
		row.InteriorID = -1
		if s := record[idx["interior_id"]]; s != "" {
			if row.InteriorID, err = strconv.Atoi(s); err != nil {
				return nil, fmt.Errorf("geometry: line %d: bad interior_id: %w", line, err)
			}
		}
		row.Meta = make(map[string]string, len(t.MetaColumns))
		for _, col := range t.MetaColumns {
			row.Meta[col] = record[idx[col]]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadGeoJSON loads a feature collection from a file.
func ReadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geometry: read GeoJSON: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("geometry: parse GeoJSON: %w", err)
	}
	return fc, nil
}

// WriteGeoJSON saves a feature collection to a file.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	raw, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("geometry: encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("geometry: write GeoJSON: %w", err)
	}
	return nil
}
