package qibla

import (
	"math"
	"testing"
)

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name           string
		lat1, lng1     float64
		lat2, lng2     float64
		expectedKM     float64
		toleranceKM    float64 // absolute tolerance
		toleranceRatio float64 // relative tolerance (percentage)
	}{
		{
			name:        "same point returns zero",
			lat1:        40.7128,
			lng1:        -74.0060,
			lat2:        40.7128,
			lng2:        -74.0060,
			expectedKM:  0,
			toleranceKM: 0.001,
		},
		{
			name:           "NYC to London",
			lat1:           40.7128,
			lng1:           -74.0060,
			lat2:           51.5074,
			lng2:           -0.1278,
			expectedKM:     5570,
			toleranceRatio: 0.01,
		},
		{
			name:           "North Pole to South Pole (antipodal)",
			lat1:           90,
			lng1:           0,
			lat2:           -90,
			lng2:           0,
			expectedKM:     20015,
			toleranceRatio: 0.01,
		},
		{
			name:           "crossing International Date Line - Tokyo to Honolulu",
			lat1:           35.6762,
			lng1:           139.6503,
			lat2:           21.3069,
			lng2:           -157.8583,
			expectedKM:     6199,
			toleranceRatio: 0.02,
		},
		{
			name:           "Medina to Mecca",
			lat1:           24.5247,
			lng1:           39.5692,
			lat2:           21.4225,
			lng2:           39.8262,
			expectedKM:     346,
			toleranceRatio: 0.02,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)

			tolerance := tt.toleranceKM
			if tt.toleranceRatio > 0 && tt.expectedKM > 0 {
				tolerance = tt.expectedKM * tt.toleranceRatio
			}

			if math.Abs(got-tt.expectedKM) > tolerance {
				t.Errorf("HaversineDistance(%v, %v, %v, %v) = %v km, want ~%v km (tolerance: %v km)",
					tt.lat1, tt.lng1, tt.lat2, tt.lng2, got, tt.expectedKM, tolerance)
			}
		})
	}
}

func TestDistanceToKaaba(t *testing.T) {
	tests := []struct {
		name       string
		device     GeoCoordinate
		expectedKM float64
	}{
		{"New York", GeoCoordinate{40.7128, -74.0060}, 10306},
		{"Cairo", GeoCoordinate{30.0444, 31.2357}, 1287},
		{"Jakarta", GeoCoordinate{-6.2088, 106.8456}, 7920},
		{"at the Kaaba", Kaaba, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKM(tt.device, Kaaba)
			if math.Abs(got-tt.expectedKM) > math.Max(1, tt.expectedKM*0.005) {
				t.Errorf("DistanceKM(%+v, Kaaba) = %v, want ~%v", tt.device, got, tt.expectedKM)
			}
		})
	}
}

func TestHaversineDistanceSymmetry(t *testing.T) {
	testCases := []struct {
		lat1, lng1, lat2, lng2 float64
	}{
		{40.7128, -74.0060, 21.4225, 39.8262},
		{-33.8688, 151.2093, 35.6762, 139.6503},
		{0, 0, 45, 45},
		{90, 0, -90, 0},
	}

	for _, tc := range testCases {
		d1 := HaversineDistance(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
		d2 := HaversineDistance(tc.lat2, tc.lng2, tc.lat1, tc.lng1)

		if math.Abs(d1-d2) > 0.0001 {
			t.Errorf("Distance not symmetric: (%v,%v)->(%v,%v)=%v but reverse=%v",
				tc.lat1, tc.lng1, tc.lat2, tc.lng2, d1, d2)
		}
	}
}

func TestHaversineDistanceNonNegative(t *testing.T) {
	testCases := []struct {
		lat1, lng1, lat2, lng2 float64
	}{
		{0, 0, 0, 0},
		{-90, -180, 90, 180},
		{45, -90, -45, 90},
		{0, 180, 0, -180}, // Same point across date line
	}

	for _, tc := range testCases {
		d := HaversineDistance(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
		if d < 0 || math.IsNaN(d) {
			t.Errorf("HaversineDistance(%v, %v, %v, %v) = %v, want non-negative",
				tc.lat1, tc.lng1, tc.lat2, tc.lng2, d)
		}
	}
}

func BenchmarkHaversineDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HaversineDistance(40.7128, -74.0060, 21.4225, 39.8262)
	}
}
