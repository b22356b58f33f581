package geo

import (
	"fmt"
	"math"
)

// MaxGridCells bounds a single grid generation run.
const MaxGridCells = 1_000_000

// Cell is one tile of an AOI processing grid.
type Cell struct {
	Row  int
	Col  int
	BBox BBox
}

// Grid partitions an AOI into square tiles of tileMeters edge length.
// Adjacent tiles overlap by overlapMeters so an object on a tile border
// is fully visible in at least one tile; duplicate detections from the
// overlap are resolved downstream. Edge tiles keep the full size and may
// extend slightly past the AOI boundary.
func Grid(aoi BBox, tileMeters, overlapMeters float64) ([]Cell, error) {
	if err := aoi.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AOI: %w", err)
	}
	if tileMeters <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %f", tileMeters)
	}
	if overlapMeters < 0 || overlapMeters >= tileMeters {
		return nil, fmt.Errorf("overlap %f must be in [0, tile size %f)", overlapMeters, tileMeters)
	}

	centerLat := (aoi.MinLat + aoi.MaxLat) / 2
	cosLat := math.Cos(centerLat * math.Pi / 180)
	if cosLat <= 0 {
		return nil, fmt.Errorf("AOI too close to a pole: center lat %f", centerLat)
	}

	tileLat := tileMeters / MetersPerDegreeLat
	tileLon := tileMeters / (MetersPerDegreeLat * cosLat)
	stepLat := (tileMeters - overlapMeters) / MetersPerDegreeLat
	stepLon := (tileMeters - overlapMeters) / (MetersPerDegreeLat * cosLat)

	rows := int(math.Ceil((aoi.MaxLat - aoi.MinLat) / stepLat))
	cols := int(math.Ceil((aoi.MaxLon - aoi.MinLon) / stepLon))
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if rows*cols > MaxGridCells {
		return nil, fmt.Errorf("grid of %dx%d cells exceeds limit %d", rows, cols, MaxGridCells)
	}

	cells := make([]Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		minLat := aoi.MinLat + float64(r)*stepLat
		for c := 0; c < cols; c++ {
			minLon := aoi.MinLon + float64(c)*stepLon
			cells = append(cells, Cell{
				Row: r,
				Col: c,
				BBox: BBox{
					MinLon: minLon,
					MinLat: minLat,
					MaxLon: minLon + tileLon,
					MaxLat: minLat + tileLat,
				},
			})
		}
	}

	return cells, nil
}
