// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package matching

import (
	"log"
	"maps"
	"slices"

	"github.com/jcodagnone/ocomatch/errs"
	"gonum.org/v1/gonum/stat"
)

// Location identifies a sounding by lite file and row within that file.
type Location struct {
	FileIndex uint8
	Row       uint64
}

// Group is a cluster of A and B soundings linked by match records.
type Group struct {
	A map[uint64]struct{}
	B map[uint64]struct{}
}

// AIDs returns the A sounding ids of the group in ascending order.
func (g *Group) AIDs() []uint64 {
	return slices.Sorted(maps.Keys(g.A))
}

// BIDs returns the B sounding ids of the group in ascending order.
func (g *Group) BIDs() []uint64 {
	return slices.Sorted(maps.Keys(g.B))
}

func (g *Group) intersects(ids []uint64) bool {
	for _, id := range ids {
		if _, ok := g.B[id]; ok {
			return true
		}
	}

	return false
}

// running mean of the distance and time delta of the matches of one A sounding.
// An A sounding id that shows up in several records, e.g. because it is in
// more than one lite file, pools the matches of all of them; with unique A
// ids this is the mean over the record's own matches.
type aMean struct {
	n         int
	distance  float64
	timeDelta float64
}

func (m *aMean) add(rec *Record) {
	dists := make([]float64, len(rec.B))
	dts := make([]float64, len(rec.B))

	for i, b := range rec.B {
		dists[i] = float64(b.DistanceKm)
		dts[i] = float64(b.TimeDelta)
	}

	k := len(rec.B)
	total := float64(m.n + k)
	m.distance = (m.distance*float64(m.n) + stat.Mean(dists, nil)*float64(k)) / total
	m.timeDelta = (m.timeDelta*float64(m.n) + stat.Mean(dts, nil)*float64(k)) / total
	m.n += k
}

// Grouper builds match groups one record at a time.
//
// Each record joins the first existing group, in creation order, that
// shares at least one B sounding with it; otherwise it starts a new group.
// A record that bridges two existing groups only joins the first one. This
// makes the result depend on the order of the records: feed them sorted by
// A sounding id, as PairwiseMatches holds them, or clusters that should be
// one can come out split.
type Grouper struct {
	groups []*Group
	aLoc   map[uint64]Location
	bLoc   map[uint64]Location
	aMeans map[uint64]*aMean
}

// NewGrouper returns an empty Grouper.
func NewGrouper() *Grouper {
	return &Grouper{
		aLoc:   make(map[uint64]Location),
		bLoc:   make(map[uint64]Location),
		aMeans: make(map[uint64]*aMean),
	}
}

// Add merges one record into the groups. Records without B matches are ignored.
func (g *Grouper) Add(rec Record) {
	if len(rec.B) == 0 {
		return
	}

	bids := rec.BSoundingIDs()

	var target *Group

	for _, grp := range g.groups {
		if grp.intersects(bids) {
			target = grp

			break
		}
	}

	if target == nil {
		target = &Group{A: make(map[uint64]struct{}), B: make(map[uint64]struct{}, len(bids))}
		g.groups = append(g.groups, target)
	}

	target.A[rec.ASoundingID] = struct{}{}
	for _, id := range bids {
		target.B[id] = struct{}{}
	}

	g.aLoc[rec.ASoundingID] = Location{FileIndex: rec.AFileIndex, Row: rec.ARow}
	for _, b := range rec.B {
		g.bLoc[b.SoundingID] = Location{FileIndex: b.FileIndex, Row: b.Row}
	}

	m, ok := g.aMeans[rec.ASoundingID]
	if !ok {
		m = &aMean{}
		g.aMeans[rec.ASoundingID] = m
	}

	m.add(&rec)
}

// Result returns the groups built so far.
func (g *Grouper) Result(aFiles, bFiles []string) *MatchGroupSet {
	return &MatchGroupSet{
		AFiles: aFiles,
		BFiles: bFiles,
		Groups: g.groups,
		aLoc:   g.aLoc,
		bLoc:   g.bLoc,
		aMeans: g.aMeans,
	}
}

// GroupMatches groups the records of pm, in order.
func GroupMatches(pm *PairwiseMatches) *MatchGroupSet {
	g := NewGrouper()
	for _, rec := range pm.Records {
		g.Add(rec)
	}

	log.Printf("Grouped %d match records into %d groups", len(pm.Records), len(g.groups))

	return g.Result(pm.AFiles, pm.BFiles)
}

// MatchGroupSet is the outcome of grouping a PairwiseMatches.
type MatchGroupSet struct {
	AFiles []string
	BFiles []string
	Groups []*Group

	aLoc   map[uint64]Location
	bLoc   map[uint64]Location
	aMeans map[uint64]*aMean
}

// GroupSummary describes one group by its first and last sounding on each
// side and the mean distance and time delta of its matches.
type GroupSummary struct {
	ASoundingIDStart uint64
	ASoundingIDEnd   uint64
	AStart           Location
	AEnd             Location

	BSoundingIDStart uint64
	BSoundingIDEnd   uint64
	BStart           Location
	BEnd             Location

	// unweighted mean over the group's A soundings of each A sounding's mean
	MeanDistanceKm float64
	MeanTimeDeltaS float64
}

func locate(table map[uint64]Location, id uint64, side string) (Location, error) {
	loc, ok := table[id]
	if !ok {
		return Location{}, errs.Internal("%s sounding ID %d not stored in the index table", side, id)
	}

	return loc, nil
}

// Summaries finalizes every group, in creation order.
func (s *MatchGroupSet) Summaries() ([]GroupSummary, error) {
	ret := make([]GroupSummary, 0, len(s.Groups))

	for i, grp := range s.Groups {
		aids, bids := grp.AIDs(), grp.BIDs()
		if len(aids) == 0 || len(bids) == 0 {
			return nil, errs.Internal("group %d has %d A and %d B soundings", i, len(aids), len(bids))
		}

		sum := GroupSummary{
			ASoundingIDStart: aids[0],
			ASoundingIDEnd:   aids[len(aids)-1],
			BSoundingIDStart: bids[0],
			BSoundingIDEnd:   bids[len(bids)-1],
		}

		var err error
		if sum.AStart, err = locate(s.aLoc, sum.ASoundingIDStart, "A"); err != nil {
			return nil, err
		}

		if sum.AEnd, err = locate(s.aLoc, sum.ASoundingIDEnd, "A"); err != nil {
			return nil, err
		}

		if sum.BStart, err = locate(s.bLoc, sum.BSoundingIDStart, "B"); err != nil {
			return nil, err
		}

		if sum.BEnd, err = locate(s.bLoc, sum.BSoundingIDEnd, "B"); err != nil {
			return nil, err
		}

		dists := make([]float64, len(aids))
		dts := make([]float64, len(aids))

		for k, id := range aids {
			m, ok := s.aMeans[id]
			if !ok {
				return nil, errs.Internal("A sounding ID %d has no mean distance", id)
			}

			dists[k], dts[k] = m.distance, m.timeDelta
		}

		sum.MeanDistanceKm = stat.Mean(dists, nil)
		sum.MeanTimeDeltaS = stat.Mean(dts, nil)

		ret = append(ret, sum)
	}

	return ret, nil
}
