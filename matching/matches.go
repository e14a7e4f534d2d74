// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matching

import (
	"cmp"
	"slices"
)

// BMatch is one B sounding coincident with the A sounding of a Record.
type BMatch struct {
	FileIndex  uint8
	Row        uint64
	SoundingID uint64
	DistanceKm float32
	TimeDelta  float32 // A time minus B time, in seconds
}

// Record pairs one A sounding with every B sounding that coincides with it.
type Record struct {
	AFileIndex  uint8
	ARow        uint64
	ASoundingID uint64
	B           []BMatch
}

// BSoundingIDs returns the ids of the B soundings, in match order.
func (r *Record) BSoundingIDs() []uint64 {
	ids := make([]uint64, len(r.B))
	for i, m := range r.B {
		ids[i] = m.SoundingID
	}

	return ids
}

// PairwiseMatches is the full set of match records between two sets of
// soundings, ordered by A sounding id. Grouping relies on that order.
type PairwiseMatches struct {
	AFiles  []string
	BFiles  []string
	Records []Record
}

// NewPairwiseMatches sorts records by A sounding id and wraps them together
// with the file lists they refer to. The sort is stable so records sharing
// an A id keep their relative order.
func NewPairwiseMatches(records []Record, aFiles, bFiles []string) *PairwiseMatches {
	slices.SortStableFunc(records, func(x, y Record) int {
		return cmp.Compare(x.ASoundingID, y.ASoundingID)
	})

	return &PairwiseMatches{AFiles: aFiles, BFiles: bFiles, Records: records}
}

// MaxFanout returns the largest number of B matches of any record.
func (pm *PairwiseMatches) MaxFanout() int {
	n := 0
	for i := range pm.Records {
		n = max(n, len(pm.Records[i].B))
	}

	return n
}

// Len returns the number of records.
func (pm *PairwiseMatches) Len() int {
	return len(pm.Records)
}
