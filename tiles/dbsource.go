package tiles

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khankhulgun/khanrender/worker"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

// DBVectorSource fetches features for a tile's bounding box from a
// PostGIS table. Each row carries the feature id, a JSON properties
// column and the geometry encoded as GeoJSON; rows are grouped by the
// layer column into source-layers.
type DBVectorSource struct {
	DB                *gorm.DB
	DbSchema          string
	DbTable           string
	GeometryFieldName string
	IDFieldName       string
	LayerFieldName    string // optional; empty groups everything under the source name
	PropertiesField   string // optional JSON column with feature properties
}

type dbFeatureRow struct {
	ID         string `gorm:"column:feature_id"`
	Layer      string `gorm:"column:layer_name"`
	Properties string `gorm:"column:properties"`
	Geometry   string `gorm:"column:geometry"`
}

func (s *DBVectorSource) FetchTile(job worker.Job) (map[string][]*geojson.Feature, error) {
	bound := ID{Z: job.Z, X: job.X, Y: job.Y}.Bound()

	layerExpr := "''"
	if s.LayerFieldName != "" {
		layerExpr = quoteIdent(s.LayerFieldName)
	}
	propsExpr := "'{}'"
	if s.PropertiesField != "" {
		propsExpr = quoteIdent(s.PropertiesField)
	}

	query := `
		SELECT ` + quoteIdent(s.IDFieldName) + `::text AS feature_id,
			` + layerExpr + ` AS layer_name,
			` + propsExpr + `::text AS properties,
			ST_AsGeoJSON(` + quoteIdent(s.GeometryFieldName) + `) AS geometry
		FROM ` + quoteIdent(s.DbSchema) + `.` + quoteIdent(s.DbTable) + `
		WHERE ` + quoteIdent(s.GeometryFieldName) + ` && ST_MakeEnvelope(?, ?, ?, ?, 4326)
	`

	rows, err := s.DB.Raw(query, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query source %q: %w", job.Source, err)
	}
	defer rows.Close()

	out := make(map[string][]*geojson.Feature)
	for rows.Next() {
		var row dbFeatureRow
		if err := s.DB.ScanRows(rows, &row); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		feature, err := rowToFeature(row)
		if err != nil {
			return nil, err
		}
		layer := row.Layer
		if layer == "" {
			layer = job.Source
		}
		out[layer] = append(out[layer], feature)
	}
	return out, rows.Err()
}

func rowToFeature(row dbFeatureRow) (*geojson.Feature, error) {
	geom, err := geojson.UnmarshalGeometry([]byte(row.Geometry))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature geometry: %w", err)
	}
	feature := geojson.NewFeature(geom.Geometry())
	feature.ID = row.ID
	if row.Properties != "" {
		var props geojson.Properties
		if err := json.Unmarshal([]byte(row.Properties), &props); err == nil {
			feature.Properties = props
		}
	}
	return feature, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}
