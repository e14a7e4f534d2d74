// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the distance and time kernels used to decide whether
// two soundings coincide.
package spatial

import "math"

const (
	// EarthRadiusKm is the fixed spherical earth radius used by GreatCircleDistance.
	EarthRadiusKm float32 = 6378.137

	deg2rad float32 = math.Pi / 180
)

func sin32(x float32) float32 {
	return float32(math.Sin(float64(x)))
}

func abs32(x float32) float32 {
	return float32(math.Abs(float64(x)))
}

// GreatCircleDistance returns the distance in kilometers between two points
// given in degrees. The computation is done in float32 with the haversine
// identity written in terms of sines only, so results are reproducible
// across callers.
func GreatCircleDistance(lon1, lat1, lon2, lat2 float32) float32 {
	lon1 *= deg2rad
	lat1 *= deg2rad
	lon2 *= deg2rad
	lat2 *= deg2rad

	dlon := abs32(lon2 - lon1)
	dlat := abs32(lat2 - lat1)

	sdlat := sin32(dlat / 2)
	smean := sin32((lat1 + lat2) / 2)
	sdlon := sin32(dlon / 2)

	inner := sdlat*sdlat + (1-sdlat*sdlat-smean*smean)*sdlon*sdlon
	// rounding can push inner slightly past 1 for antipodal points
	if inner > 1 {
		inner = 1
	}

	central := 2 * float32(math.Asin(math.Sqrt(float64(inner))))

	return central * EarthRadiusKm
}

// TimeDifference returns tsA - tsB in seconds.
func TimeDifference(tsA, tsB float64) float64 {
	return tsA - tsB
}
