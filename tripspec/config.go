package tripspec

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec files look like:
//
//	routes:
//	  - route_id: "4"
//	    directions:
//	      - direction: north
//	        headsign: TransCanada
//	        stops: [{id: "1", wildcard: true}, "1051", "1056"]
//	      - direction: south
//	        headsign: Downtown Terminal
//	        stops: ["1056", "1065", {id: "1", wildcard: true}]
type specFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	RouteID    string           `yaml:"route_id"`
	Directions []directionEntry `yaml:"directions"`
}

type directionEntry struct {
	Direction Direction `yaml:"direction"`
	Headsign  string    `yaml:"headsign"`
	Stops     Template  `yaml:"stops"`
}

// LoadSpecs decodes a spec file. Specs are returned in file order and
// are not validated beyond their shape; Register does the rest.
func LoadSpecs(r io.Reader) ([]RouteTripSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	f := specFile{}
	err := dec.Decode(&f)
	if errors.Is(err, io.EOF) {
		return []RouteTripSpec{}, nil
	}
	if err != nil {
		return nil, &ConfigError{Msg: "decoding spec file", Err: err}
	}

	specs := make([]RouteTripSpec, 0, len(f.Routes))
	for _, route := range f.Routes {
		if len(route.Directions) != 2 {
			return nil, configErrorf(route.RouteID, "expected 2 directions, got %d", len(route.Directions))
		}
		rts := RouteTripSpec{RouteID: route.RouteID}
		for i, d := range route.Directions {
			rts.Directions[i] = DirectionSpec{
				Direction: d.Direction,
				Headsign:  d.Headsign,
				Template:  d.Stops,
			}
		}
		specs = append(specs, rts)
	}

	return specs, nil
}

// LoadRegistry registers every spec in the file and seals the result.
func LoadRegistry(r io.Reader) (*Registry, error) {
	specs, err := LoadSpecs(r)
	if err != nil {
		return nil, err
	}

	builder := NewRegistryBuilder()
	for _, rts := range specs {
		if err := builder.Register(rts); err != nil {
			return nil, err
		}
	}

	return builder.Seal(), nil
}

func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spec file: %w", err)
	}
	defer f.Close()

	return LoadRegistry(f)
}

// WriteSpecs encodes specs in the format read by LoadSpecs.
func WriteSpecs(w io.Writer, specs []RouteTripSpec) error {
	f := specFile{Routes: make([]routeEntry, 0, len(specs))}
	for _, rts := range specs {
		entry := routeEntry{RouteID: rts.RouteID}
		for _, ds := range rts.Directions {
			entry.Directions = append(entry.Directions, directionEntry{
				Direction: ds.Direction,
				Headsign:  ds.Headsign,
				Stops:     ds.Template,
			})
		}
		f.Routes = append(f.Routes, entry)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding specs: %w", err)
	}
	return enc.Close()
}
