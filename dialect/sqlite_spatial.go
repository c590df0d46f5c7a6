package dialect

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/drpcorg/recdb/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"modernc.org/sqlite"
)

// SQLite has no geometry type. Geometries are stored as WKT text and these
// functions give them the same names and meaning PostGIS uses.

var (
	spatialOnce sync.Once
	spatialErr  error
)

type geomFunc struct {
	name  string
	nargs int32
	fn    func(args []orb.Geometry) (driver.Value, error)
}

var spatialFuncs = []geomFunc{
	{"ST_GeomFromText", 1, func(g []orb.Geometry) (driver.Value, error) {
		return wkt.MarshalString(g[0]), nil
	}},
	{"ST_AsText", 1, func(g []orb.Geometry) (driver.Value, error) {
		return wkt.MarshalString(g[0]), nil
	}},
	{"ST_Contains", 2, func(g []orb.Geometry) (driver.Value, error) {
		return boolValue(geo.Contains(g[0], g[1])), nil
	}},
	{"ST_Equals", 2, func(g []orb.Geometry) (driver.Value, error) {
		return boolValue(orb.Equal(g[0], g[1])), nil
	}},
	{"ST_Area", 1, func(g []orb.Geometry) (driver.Value, error) {
		return planar.Area(g[0]), nil
	}},
	{"ST_Length", 1, func(g []orb.Geometry) (driver.Value, error) {
		return planar.Length(g[0]), nil
	}},
	{"ST_MakeLine", 2, func(g []orb.Geometry) (driver.Value, error) {
		a, aok := g[0].(orb.Point)
		b, bok := g[1].(orb.Point)
		if !aok || !bok {
			return nil, fmt.Errorf("ST_MakeLine: points expected, got %s and %s", g[0].GeoJSONType(), g[1].GeoJSONType())
		}
		return wkt.MarshalString(orb.LineString{a, b}), nil
	}},
}

func registerSpatial() error {
	spatialOnce.Do(func() {
		for _, f := range spatialFuncs {
			spatialErr = sqlite.RegisterDeterministicScalarFunction(f.name, f.nargs, wrapGeom(f.fn))
			if spatialErr != nil {
				return
			}
		}
	})
	return spatialErr
}

func wrapGeom(fn func([]orb.Geometry) (driver.Value, error)) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		geoms := make([]orb.Geometry, len(args))
		for i, arg := range args {
			var text string
			switch t := arg.(type) {
			case nil:
				return nil, nil
			case string:
				text = t
			case []byte:
				text = string(t)
			default:
				return nil, fmt.Errorf("geometry expected, got %T", arg)
			}
			g, err := geo.Parse(text)
			if err != nil {
				return nil, err
			}
			geoms[i] = g
		}
		return fn(geoms)
	}
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
