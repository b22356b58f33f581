package geo

import (
	"fmt"
	"math"
)

const (
	// MetersPerDegreeLat is the spherical-earth approximation used for
	// converting a physical window size to a latitude span.
	MetersPerDegreeLat = 111132.0

	// MercatorRadius is the Web Mercator half-circumference constant.
	MercatorRadius = 20037508.34

	// EarthRadiusMeters is the mean earth radius used by haversine.
	EarthRadiusMeters = 6371000.0

	// Web Mercator latitude limit
	MinLat = -85.051129
	MaxLat = 85.051129
	MinLon = -180.0
	MaxLon = 180.0
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Validate checks ordering and coordinate ranges.
func (b BBox) Validate() error {
	if !finite(b.MinLon) || !finite(b.MinLat) || !finite(b.MaxLon) || !finite(b.MaxLat) {
		return fmt.Errorf("bounding box contains non-finite coordinates: %+v", b)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("min lat (%f) must be less than max lat (%f)", b.MinLat, b.MaxLat)
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("min lon (%f) must be less than max lon (%f)", b.MinLon, b.MaxLon)
	}
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: %f..%f", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: %f..%f", b.MinLon, b.MaxLon)
	}
	return nil
}

// String renders the box as the comma-joined WMS BBOX parameter order.
func (b BBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// BBoxFromCenter computes the bounding box of a square window of
// windowMeters meters centered on (lat, lon). Longitude degree length is
// scaled by cos(lat); good enough for mid-latitude AOIs.
func BBoxFromCenter(lat, lon, windowMeters float64) (BBox, error) {
	if !finite(lat) || !finite(lon) || !finite(windowMeters) {
		return BBox{}, fmt.Errorf("non-finite input: lat=%f lon=%f window=%f", lat, lon, windowMeters)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return BBox{}, fmt.Errorf("center out of range: lat=%f lon=%f", lat, lon)
	}
	if windowMeters <= 0 {
		return BBox{}, fmt.Errorf("window must be positive, got %f", windowMeters)
	}

	latSpan := windowMeters / MetersPerDegreeLat
	lonSpan := windowMeters / (MetersPerDegreeLat * math.Cos(lat*math.Pi/180))

	return BBox{
		MinLon: lon - lonSpan/2,
		MinLat: lat - latSpan/2,
		MaxLon: lon + lonSpan/2,
		MaxLat: lat + latSpan/2,
	}, nil
}

// WGS84ToMercator is the forward Web Mercator projection.
func WGS84ToMercator(lat, lon float64) (x, y float64, err error) {
	if !finite(lat) || !finite(lon) {
		return 0, 0, fmt.Errorf("non-finite input: lat=%f lon=%f", lat, lon)
	}
	if lat < MinLat || lat > MaxLat {
		return 0, 0, fmt.Errorf("latitude %f outside Web Mercator range [%f, %f]", lat, MinLat, MaxLat)
	}
	if lon < MinLon || lon > MaxLon {
		return 0, 0, fmt.Errorf("longitude %f out of range [-180, 180]", lon)
	}

	x = lon * MercatorRadius / 180
	y = math.Log(math.Tan((90+lat)*math.Pi/360)) / math.Pi * MercatorRadius
	return x, y, nil
}

// MercatorToWGS84 is the inverse Web Mercator projection.
func MercatorToWGS84(x, y float64) (lat, lon float64, err error) {
	if !finite(x) || !finite(y) {
		return 0, 0, fmt.Errorf("non-finite input: x=%f y=%f", x, y)
	}

	lon = x / MercatorRadius * 180
	lat = (2*math.Atan(math.Exp(y/MercatorRadius*math.Pi)) - math.Pi/2) * 180 / math.Pi
	return lat, lon, nil
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
