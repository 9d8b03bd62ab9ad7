package tripspec

import (
	"strings"
)

type DirectionSpec struct {
	Direction Direction
	Headsign  string
	Template  Template
}

// RouteTripSpec is the hand written description of a route's two trip
// variants. It is inert until compiled into a Spec.
type RouteTripSpec struct {
	RouteID    string
	Directions [2]DirectionSpec
}

// Spec is a validated RouteTripSpec. It is immutable; accessors hand
// out copies.
type Spec struct {
	routeID    string
	directions [2]DirectionSpec

	// Position of each non-wildcard stop in its template.
	index [2]map[string]int

	skeleton  [2][]string
	wildcards map[string]bool
}

// Compile validates rts and precomputes the lookups used by the
// resolver and comparator.
func Compile(rts RouteTripSpec) (*Spec, error) {
	routeID := strings.TrimSpace(rts.RouteID)
	if routeID == "" {
		return nil, configErrorf("", "route id is required")
	}

	d0, d1 := rts.Directions[0].Direction, rts.Directions[1].Direction
	if !d0.valid() || !d1.valid() {
		return nil, configErrorf(routeID, "both directions must be set")
	}
	if d1 != d0.Opposite() {
		return nil, configErrorf(routeID, "directions %s and %s are not complementary", d0, d1)
	}

	s := &Spec{
		routeID:   routeID,
		wildcards: map[string]bool{},
	}

	for side, ds := range rts.Directions {
		if strings.TrimSpace(ds.Headsign) == "" {
			return nil, configErrorf(routeID, "%s headsign is empty", ds.Direction)
		}
		if len(ds.Template) < 2 {
			return nil, configErrorf(routeID, "%s template needs at least 2 stops, got %d", ds.Direction, len(ds.Template))
		}

		index := map[string]int{}
		wildcardSeen := map[string]bool{}
		skeleton := []string{}
		for pos, stop := range ds.Template {
			if stop.ID == "" {
				return nil, configErrorf(routeID, "%s template has an empty stop id at position %d", ds.Direction, pos)
			}
			if stop.Wildcard {
				if _, dup := index[stop.ID]; dup {
					return nil, configErrorf(routeID, "%s template lists stop '%s' both as wildcard and not", ds.Direction, stop.ID)
				}
				wildcardSeen[stop.ID] = true
				s.wildcards[stop.ID] = true
				continue
			}
			if wildcardSeen[stop.ID] {
				return nil, configErrorf(routeID, "%s template lists stop '%s' both as wildcard and not", ds.Direction, stop.ID)
			}
			if _, dup := index[stop.ID]; dup {
				return nil, configErrorf(routeID, "%s template lists stop '%s' more than once", ds.Direction, stop.ID)
			}
			index[stop.ID] = pos
			skeleton = append(skeleton, stop.ID)
		}
		if len(skeleton) == 0 {
			return nil, configErrorf(routeID, "%s template has only wildcard stops", ds.Direction)
		}

		s.directions[side] = DirectionSpec{
			Direction: ds.Direction,
			Headsign:  strings.TrimSpace(ds.Headsign),
			Template:  ds.Template.clone(),
		}
		s.index[side] = index
		s.skeleton[side] = skeleton
	}

	// A wildcard must be a wildcard everywhere.
	for side := range s.index {
		for id := range s.index[side] {
			if s.wildcards[id] {
				return nil, configErrorf(routeID, "stop '%s' is a wildcard in one template but not in the other", id)
			}
		}
	}

	if isSubsequence(s.skeleton[0], s.skeleton[1]) || isSubsequence(s.skeleton[1], s.skeleton[0]) {
		return nil, configErrorf(routeID, "templates cannot be told apart once wildcards are ignored")
	}

	return s, nil
}

func (s *Spec) RouteID() string {
	return s.routeID
}

func (s *Spec) Directions() [2]Direction {
	return [2]Direction{s.directions[0].Direction, s.directions[1].Direction}
}

// Headsign returns the headsign for d, or "" when d is not one of the
// spec's directions.
func (s *Spec) Headsign(d Direction) string {
	side, ok := s.side(d)
	if !ok {
		return ""
	}
	return s.directions[side].Headsign
}

// Template returns a copy of the template for d.
func (s *Spec) Template(d Direction) Template {
	side, ok := s.side(d)
	if !ok {
		return nil
	}
	return s.directions[side].Template.clone()
}

func (s *Spec) IsWildcard(stopID string) bool {
	return s.wildcards[stopID]
}

// RouteTripSpec returns an editable copy of the spec's source.
func (s *Spec) RouteTripSpec() RouteTripSpec {
	rts := RouteTripSpec{RouteID: s.routeID}
	for side, ds := range s.directions {
		rts.Directions[side] = DirectionSpec{
			Direction: ds.Direction,
			Headsign:  ds.Headsign,
			Template:  ds.Template.clone(),
		}
	}
	return rts
}

func (s *Spec) side(d Direction) (int, bool) {
	for side, ds := range s.directions {
		if ds.Direction == d {
			return side, true
		}
	}
	return 0, false
}
