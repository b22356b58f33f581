package aggregator

import (
	"fmt"

	"polescan/internal/geo"
)

// ProjectCenter maps a pixel bounding box center into geographic
// coordinates by linear interpolation over the tile bounding box. The
// image Y axis grows downward while latitude grows upward, so Y is
// inverted before interpolating.
func ProjectCenter(x1, y1, x2, y2 float64, tile geo.BBox, imgWidth, imgHeight int) (lat, lon float64, err error) {
	if err := tile.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid tile bbox: %w", err)
	}
	if imgWidth <= 0 || imgHeight <= 0 {
		return 0, 0, fmt.Errorf("invalid image dimensions %dx%d", imgWidth, imgHeight)
	}

	w := float64(imgWidth)
	h := float64(imgHeight)
	for _, p := range []struct {
		v, max float64
		axis   string
	}{
		{x1, w, "x1"}, {x2, w, "x2"}, {y1, h, "y1"}, {y2, h, "y2"},
	} {
		if p.v < 0 || p.v > p.max {
			return 0, 0, fmt.Errorf("pixel coordinate %s=%f outside [0, %f]", p.axis, p.v, p.max)
		}
	}

	cx := (x1 + x2) / 2
	cy := (y1 + y2) / 2

	lon = tile.MinLon + (cx/w)*(tile.MaxLon-tile.MinLon)
	lat = tile.MaxLat - (cy/h)*(tile.MaxLat-tile.MinLat)
	return lat, lon, nil
}
