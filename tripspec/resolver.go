package tripspec

import (
	"fmt"
	"sort"
)

type StopVisit struct {
	StopID   string
	Sequence uint32
}

// RawTrip is a trip as found in the feed. DirectionID is the feed's own
// direction_id. The resolver ignores it; it only matters for routes
// without a spec.
type RawTrip struct {
	RouteID     string
	TripID      string
	DirectionID int8
	Stops       []StopVisit
}

// Stops sorted by sequence. Visits sharing a sequence keep their
// relative order.
func (t *RawTrip) orderedStops() []StopVisit {
	stops := make([]StopVisit, len(t.Stops))
	copy(stops, t.Stops)
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})
	return stops
}

type Variant struct {
	Direction Direction
	Headsign  string
	Trips     []*RawTrip
}

// Split is the outcome of resolving a route's trips against its spec.
// Both variants are always present, possibly without trips.
type Split struct {
	spec     *Spec
	variants [2]Variant
	assigned map[string]int
	ordered  map[string][]StopVisit
}

// Classify picks the direction whose template best matches the trip.
func (s *Spec) Classify(trip *RawTrip) (Direction, error) {
	side, err := s.classify(trip.TripID, trip.orderedStops())
	if err != nil {
		return DirectionNone, err
	}
	return s.directions[side].Direction, nil
}

// Trip stops are compared to each template's non-wildcard stops by
// longest common subsequence. The larger match wins; a tie, including
// zero, is ambiguous.
func (s *Spec) classify(tripID string, stops []StopVisit) (int, error) {
	ids := make([]string, 0, len(stops))
	for _, stop := range stops {
		if !s.wildcards[stop.StopID] {
			ids = append(ids, stop.StopID)
		}
	}

	matches := [2]int{
		matchCount(ids, s.skeleton[0]),
		matchCount(ids, s.skeleton[1]),
	}
	switch {
	case matches[0] > matches[1]:
		return 0, nil
	case matches[1] > matches[0]:
		return 1, nil
	}

	return 0, &AmbiguousTripError{
		RouteID:    s.routeID,
		TripID:     tripID,
		Directions: s.Directions(),
		Matches:    matches,
	}
}

// Length of the longest common subsequence of a and b.
func matchCount(a []string, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, id := range a {
		for j := 1; j <= len(b); j++ {
			if id == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Resolve assigns each trip to one of the spec's directions. Trips that
// can't be assigned are left out of the split and reported, one error
// per trip, in input order.
func Resolve(spec *Spec, trips []*RawTrip) (*Split, []error) {
	split := &Split{
		spec:     spec,
		assigned: map[string]int{},
		ordered:  map[string][]StopVisit{},
	}
	for side, ds := range spec.directions {
		split.variants[side] = Variant{
			Direction: ds.Direction,
			Headsign:  ds.Headsign,
			Trips:     []*RawTrip{},
		}
	}

	errs := []error{}
	seen := map[string]bool{}
	for _, trip := range trips {
		if trip.RouteID != "" && trip.RouteID != spec.routeID {
			errs = append(errs, fmt.Errorf("trip '%s' of route '%s' given to route '%s': %w", trip.TripID, trip.RouteID, spec.routeID, ErrForeignTrip))
			continue
		}
		if seen[trip.TripID] {
			errs = append(errs, fmt.Errorf("route '%s': trip '%s': %w", spec.routeID, trip.TripID, ErrDuplicateTrip))
			continue
		}
		seen[trip.TripID] = true

		stops := trip.orderedStops()
		side, err := spec.classify(trip.TripID, stops)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		split.assigned[trip.TripID] = side
		split.ordered[trip.TripID] = stops
		split.variants[side].Trips = append(split.variants[side].Trips, trip)
	}

	return split, errs
}

func (s *Split) Spec() *Spec {
	return s.spec
}

// Variants returns both variants in the spec's declaration order.
func (s *Split) Variants() [2]Variant {
	out := s.variants
	for side := range out {
		out[side].Trips = append([]*RawTrip{}, out[side].Trips...)
	}
	return out
}

// Assign reports the direction a trip was assigned to.
func (s *Split) Assign(tripID string) (Direction, bool) {
	side, found := s.assigned[tripID]
	if !found {
		return DirectionNone, false
	}
	return s.variants[side].Direction, true
}
