package geo

import (
	"math"
	"testing"
)

func TestBBoxFromCenter_WindowSpans(t *testing.T) {
	// 80 m window at a mid-latitude AOI center.
	lat, lon := 40.3685712, -76.7152814
	bbox, err := BBoxFromCenter(lat, lon, 80)
	if err != nil {
		t.Fatalf("BBoxFromCenter failed: %v", err)
	}

	latSpan := bbox.MaxLat - bbox.MinLat
	lonSpan := bbox.MaxLon - bbox.MinLon

	wantLatSpan := 80.0 / MetersPerDegreeLat
	wantLonSpan := 80.0 / (MetersPerDegreeLat * math.Cos(lat*math.Pi/180))

	if math.Abs(latSpan-wantLatSpan) > 1e-12 {
		t.Errorf("lat span = %.8f, expected %.8f", latSpan, wantLatSpan)
	}
	if math.Abs(lonSpan-wantLonSpan) > 1e-12 {
		t.Errorf("lon span = %.8f, expected %.8f", lonSpan, wantLonSpan)
	}

	// Sanity against the approximate magnitudes.
	if math.Abs(latSpan-0.00072) > 0.00002 {
		t.Errorf("lat span %.6f not near 0.00072", latSpan)
	}
	if math.Abs(lonSpan-0.00094) > 0.00002 {
		t.Errorf("lon span %.6f not near 0.00094", lonSpan)
	}

	// Box is centered on the input point.
	if math.Abs((bbox.MinLat+bbox.MaxLat)/2-lat) > 1e-9 {
		t.Errorf("box not centered on latitude %f", lat)
	}
	if math.Abs((bbox.MinLon+bbox.MaxLon)/2-lon) > 1e-9 {
		t.Errorf("box not centered on longitude %f", lon)
	}
}

func TestBBoxFromCenter_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		lat    float64
		lon    float64
		window float64
	}{
		{"nan lat", math.NaN(), 0, 80},
		{"inf lon", 40, math.Inf(1), 80},
		{"nan window", 40, -76, math.NaN()},
		{"zero window", 40, -76, 0},
		{"negative window", 40, -76, -10},
		{"lat out of range", 91, 0, 80},
		{"lon out of range", 0, 181, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BBoxFromCenter(tt.lat, tt.lon, tt.window); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestMercator_RoundTrip(t *testing.T) {
	points := []struct {
		lat, lon float64
	}{
		{40.3685712, -76.7152814},
		{0, 0},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{84.9, 179.9},
		{-84.9, -179.9},
	}

	for _, p := range points {
		x, y, err := WGS84ToMercator(p.lat, p.lon)
		if err != nil {
			t.Fatalf("forward projection failed for (%f, %f): %v", p.lat, p.lon, err)
		}

		lat, lon, err := MercatorToWGS84(x, y)
		if err != nil {
			t.Fatalf("inverse projection failed for (%f, %f): %v", x, y, err)
		}

		if math.Abs(lat-p.lat) > 1e-6 {
			t.Errorf("latitude round trip: got %.8f, expected %.8f", lat, p.lat)
		}
		if math.Abs(lon-p.lon) > 1e-6 {
			t.Errorf("longitude round trip: got %.8f, expected %.8f", lon, p.lon)
		}
	}
}

func TestMercator_RejectsInvalid(t *testing.T) {
	if _, _, err := WGS84ToMercator(89, 0); err == nil {
		t.Error("expected error above Web Mercator latitude limit")
	}
	if _, _, err := WGS84ToMercator(math.NaN(), 0); err == nil {
		t.Error("expected error for NaN latitude")
	}
	if _, _, err := MercatorToWGS84(math.Inf(1), 0); err == nil {
		t.Error("expected error for infinite x")
	}
}

func TestHaversineMeters(t *testing.T) {
	// Two points ~5 m apart along a meridian: 5 m / 111132 m per degree.
	lat := 40.3685712
	d := HaversineMeters(lat, -76.7152814, lat+5.0/MetersPerDegreeLat, -76.7152814)
	if math.Abs(d-5.0) > 0.1 {
		t.Errorf("expected ~5 m, got %.3f m", d)
	}

	// Same point is zero.
	if d := HaversineMeters(lat, -76.7, lat, -76.7); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestBBox_Validate(t *testing.T) {
	valid := BBox{MinLon: -76.72, MinLat: 40.36, MaxLon: -76.71, MaxLat: 40.37}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid bbox, got %v", err)
	}

	inverted := BBox{MinLon: -76.71, MinLat: 40.37, MaxLon: -76.72, MaxLat: 40.36}
	if err := inverted.Validate(); err == nil {
		t.Error("expected error for inverted bbox")
	}

	nan := BBox{MinLon: math.NaN(), MinLat: 40.36, MaxLon: -76.71, MaxLat: 40.37}
	if err := nan.Validate(); err == nil {
		t.Error("expected error for NaN coordinate")
	}
}
