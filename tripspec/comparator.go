package tripspec

import (
	"sort"
	"strings"
)

// Occurrence is one stop visit of one trip, the unit being ordered.
type Occurrence struct {
	TripID   string
	StopID   string
	Sequence uint32
}

type occurrenceKey struct {
	tripID   string
	sequence uint32
}

type sortKey struct {
	stopID   string
	rank     int
	position float64
}

// Occurrences of trips the split didn't assign sort after both
// variants.
const unassignedRank = 2

// Comparator orders stop occurrences of a resolved route so that
// each variant reads in its template's order of travel. Keys are
// computed once, when the comparator is built.
type Comparator struct {
	split *Split
	keys  map[occurrenceKey]sortKey
}

func (s *Split) Comparator() *Comparator {
	c := &Comparator{
		split: s,
		keys:  map[occurrenceKey]sortKey{},
	}
	for side, variant := range s.variants {
		for _, trip := range variant.Trips {
			stops := s.ordered[trip.TripID]
			for i, pos := range s.spec.positions(side, stops) {
				c.keys[occurrenceKey{trip.TripID, stops[i].Sequence}] = sortKey{
					stopID:   stops[i].StopID,
					rank:     side,
					position: pos,
				}
			}
		}
	}
	return c
}

// positions places every visit of an assigned trip on its template's
// axis.
//
// Templated stops take their template index. Stops between two
// templated stops, wildcards included, are interpolated by sequence.
// A run before the first templated stop fits in the unit step below
// it, and a run after the last one in the unit step above it. A
// wildcard opening or closing the trip takes the far end of that step,
// so a shared terminal gets one slot whatever number of stops lead to
// it.
func (s *Spec) positions(side int, stops []StopVisit) []float64 {
	index := s.index[side]
	pos := make([]float64, len(stops))
	anchors := []int{}
	for i, stop := range stops {
		if idx, ok := index[stop.StopID]; ok {
			pos[i] = float64(idx)
			anchors = append(anchors, i)
		}
	}

	seq := func(i int) float64 { return float64(stops[i].Sequence) }

	if len(anchors) == 0 {
		for i := range stops {
			pos[i] = seq(i)
		}
		return pos
	}

	first, last := anchors[0], anchors[len(anchors)-1]
	end := len(stops) - 1

	span := seq(first) - seq(0)
	if span <= 0 || !s.wildcards[stops[0].StopID] {
		span++
	}
	for i := 0; i < first; i++ {
		pos[i] = pos[first] - (seq(first)-seq(i))/span
	}

	span = seq(end) - seq(last)
	if span <= 0 || !s.wildcards[stops[end].StopID] {
		span++
	}
	for i := last + 1; i <= end; i++ {
		pos[i] = pos[last] + (seq(i)-seq(last))/span
	}

	for k := 1; k < len(anchors); k++ {
		prev, next := anchors[k-1], anchors[k]
		lo, hi := pos[prev], pos[next]
		sp, sn := seq(prev), seq(next)
		for i := prev + 1; i < next; i++ {
			if sn > sp {
				pos[i] = lo + (seq(i)-sp)/(sn-sp)*(hi-lo)
			} else {
				pos[i] = (lo + hi) / 2
			}
		}
	}

	return pos
}

func (c *Comparator) key(o Occurrence) sortKey {
	k, found := c.keys[occurrenceKey{o.TripID, o.Sequence}]
	if !found || k.stopID != o.StopID {
		return sortKey{rank: unassignedRank, position: float64(o.Sequence)}
	}
	return k
}

// Compare returns a negative number when a sorts before b, positive
// when after, and zero only for identical occurrences.
func (c *Comparator) Compare(a, b Occurrence) int {
	ka, kb := c.key(a), c.key(b)
	if ka.rank != kb.rank {
		if ka.rank < kb.rank {
			return -1
		}
		return 1
	}
	if ka.position != kb.position {
		if ka.position < kb.position {
			return -1
		}
		return 1
	}
	return DefaultCompare(a, b)
}

func (c *Comparator) Less(a, b Occurrence) bool {
	return c.Compare(a, b) < 0
}

// Sort orders occurrences in place.
func (c *Comparator) Sort(occurrences []Occurrence) {
	sort.Slice(occurrences, func(i, j int) bool {
		return c.Compare(occurrences[i], occurrences[j]) < 0
	})
}

// CanonicalStops returns the distinct stops of direction d in sorted
// order, keeping the first occurrence of each.
func (c *Comparator) CanonicalStops(d Direction) []string {
	side, ok := c.split.spec.side(d)
	if !ok {
		return []string{}
	}

	occurrences := []Occurrence{}
	for _, trip := range c.split.variants[side].Trips {
		for _, stop := range c.split.ordered[trip.TripID] {
			occurrences = append(occurrences, Occurrence{
				TripID:   trip.TripID,
				StopID:   stop.StopID,
				Sequence: stop.Sequence,
			})
		}
	}
	c.Sort(occurrences)

	return distinctStops(occurrences)
}

// DefaultCompare orders by raw sequence, then trip and stop ID. Used
// for routes without a spec.
func DefaultCompare(a, b Occurrence) int {
	if a.Sequence != b.Sequence {
		if a.Sequence < b.Sequence {
			return -1
		}
		return 1
	}
	if cmp := strings.Compare(a.TripID, b.TripID); cmp != 0 {
		return cmp
	}
	return strings.Compare(a.StopID, b.StopID)
}

func distinctStops(occurrences []Occurrence) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, o := range occurrences {
		if seen[o.StopID] {
			continue
		}
		seen[o.StopID] = true
		ids = append(ids, o.StopID)
	}
	return ids
}
