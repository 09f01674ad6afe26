package domain

import (
	"math"
	"testing"
)

func TestParseGPS(t *testing.T) {
	cases := []struct {
		in       string
		lat, lon float64
	}{
		{"42.6977,23.3219", 42.6977, 23.3219},
		{"42.6977 23.3219", 42.6977, 23.3219},
		{"N42.6977, E23.3219", 42.6977, 23.3219},
		{"42.6977N 23.3219E", 42.6977, 23.3219},
		{"S33.8688, E151.2093", -33.8688, 151.2093},
		{"40.7128, W74.0060", 40.7128, -74.0060},
	}
	for _, tc := range cases {
		c, err := ParseGPS(tc.in)
		if err != nil {
			t.Fatalf("ParseGPS(%q): unexpected error: %v", tc.in, err)
		}
		if math.Abs(c.Lat-tc.lat) > 1e-9 || math.Abs(c.Lon-tc.lon) > 1e-9 {
			t.Fatalf("ParseGPS(%q) = (%f, %f), want (%f, %f)", tc.in, c.Lat, c.Lon, tc.lat, tc.lon)
		}
	}
}

func TestParseGPSRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "42.7", "91.0,23.3", "42.7,181.0", "abc,def"} {
		if _, err := ParseGPS(in); err == nil {
			t.Fatalf("ParseGPS(%q): expected error", in)
		}
	}
}

func TestHaversineM(t *testing.T) {
	// Sofia center to Sofia airport is roughly 7.3 km.
	a := Coordinate{Lat: 42.6977, Lon: 23.3219}
	b := Coordinate{Lat: 42.6952, Lon: 23.4114}

	d := HaversineM(a, b)
	if d < 7000 || d > 9000 {
		t.Fatalf("HaversineM = %.0f m, want roughly 7300", d)
	}
	if HaversineM(a, a) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestCoordinateKeyPrecision(t *testing.T) {
	a := Coordinate{Lat: 42.123457, Lon: 23.1}
	b := Coordinate{Lat: 42.123456, Lon: 23.1}
	if a.Key() == b.Key() {
		t.Fatalf("keys should differ at the sixth decimal: %s", a.Key())
	}
	c := Coordinate{Lat: 42.1234561, Lon: 23.1}
	if b.Key() != c.Key() {
		t.Fatalf("keys should agree within 6-decimal rounding: %s vs %s", b.Key(), c.Key())
	}
}
