package tripspec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// A stop in a Template. Wildcard stops are visited by both directions
// of the route (a shared terminal, typically) and are never used to
// tell the directions apart.
type TemplateStop struct {
	ID       string
	Wildcard bool
}

// Template is the expected path of travel for one direction of a
// route.
type Template []TemplateStop

// Stops builds a template with no wildcard stops.
func Stops(ids ...string) Template {
	t := make(Template, 0, len(ids))
	for _, id := range ids {
		t = append(t, TemplateStop{ID: id})
	}
	return t
}

// WithWildcard returns a copy of t with the given stops flagged as
// wildcards.
func (t Template) WithWildcard(ids ...string) Template {
	flag := map[string]bool{}
	for _, id := range ids {
		flag[id] = true
	}
	out := make(Template, len(t))
	for i, stop := range t {
		out[i] = TemplateStop{ID: stop.ID, Wildcard: stop.Wildcard || flag[stop.ID]}
	}
	return out
}

// Skeleton returns the non-wildcard stop IDs, in order.
func (t Template) Skeleton() []string {
	ids := []string{}
	for _, stop := range t {
		if !stop.Wildcard {
			ids = append(ids, stop.ID)
		}
	}
	return ids
}

func (t Template) clone() Template {
	out := make(Template, len(t))
	copy(out, t)
	return out
}

// Stops are written either as a plain scalar ("1051") or as a mapping
// ({id: "1", wildcard: true}).
func (s *TemplateStop) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s.ID = value.Value
		s.Wildcard = false
		return nil
	case yaml.MappingNode:
		raw := struct {
			ID       string `yaml:"id"`
			Wildcard bool   `yaml:"wildcard"`
		}{}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		s.ID = raw.ID
		s.Wildcard = raw.Wildcard
		return nil
	}
	return fmt.Errorf("line %d: stop must be a scalar or a mapping", value.Line)
}

func (s TemplateStop) MarshalYAML() (interface{}, error) {
	if !s.Wildcard {
		return s.ID, nil
	}
	return map[string]interface{}{"id": s.ID, "wildcard": true}, nil
}

// Reports whether sub appears in seq in order, not necessarily
// contiguously.
func isSubsequence(sub []string, seq []string) bool {
	i := 0
	for _, id := range seq {
		if i < len(sub) && sub[i] == id {
			i++
		}
	}
	return i == len(sub)
}
