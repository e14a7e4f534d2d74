// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import "strconv"

// Point is a geographical position in degrees.
type Point struct {
	Lon float32
	Lat float32
}

func formatDegrees(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// String returns the WKT form of the point, each coordinate in the shortest
// decimal that reads back as the same float32.
func (p Point) String() string {
	return "POINT(" + formatDegrees(p.Lon) + " " + formatDegrees(p.Lat) + ")"
}

// DistanceTo returns the great circle distance to other in kilometers.
func (p Point) DistanceTo(other Point) float32 {
	return GreatCircleDistance(p.Lon, p.Lat, other.Lon, other.Lat)
}
