// Package output writes a generated schedule as CSV files.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	parser "github.com/mtransitapps/ca-brandon-transit-bus-parser"
)

const (
	RoutesFile         = "routes.csv"
	DirectionStopsFile = "direction_stops.csv"
	TripsFile          = "trips.csv"
	TripStopsFile      = "trip_stops.csv"
	StopsFile          = "stops.csv"
)

type RouteCSV struct {
	ID           int64  `csv:"route_id"`
	ShortName    string `csv:"route_short_name"`
	LongName     string `csv:"route_long_name"`
	Color        string `csv:"route_color"`
	Handling     string `csv:"handling"`
	GTFSRouteIDs string `csv:"gtfs_route_ids"`
}

type DirectionStopCSV struct {
	RouteID        int64  `csv:"route_id"`
	DirectionIndex int    `csv:"direction_index"`
	Direction      string `csv:"direction"`
	Headsign       string `csv:"headsign"`
	StopIndex      int    `csv:"stop_index"`
	StopID         string `csv:"stop_id"`
}

type TripCSV struct {
	RouteID        int64  `csv:"route_id"`
	DirectionIndex int    `csv:"direction_index"`
	TripID         string `csv:"trip_id"`
	GTFSRouteID    string `csv:"gtfs_route_id"`
	ServiceID      string `csv:"service_id"`
	Departure      string `csv:"departure_time"`
}

type TripStopCSV struct {
	TripID       string `csv:"trip_id"`
	StopIndex    int    `csv:"stop_index"`
	StopID       string `csv:"stop_id"`
	StopSequence uint32 `csv:"stop_sequence"`
	Arrival      string `csv:"arrival_time"`
	Departure    string `csv:"departure_time"`
}

type StopCSV struct {
	ID   string  `csv:"stop_id"`
	Code string  `csv:"stop_code"`
	Name string  `csv:"stop_name"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
}

func writeFile(dir string, name string, rows interface{}) error {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	log.Debug().Str("file", path).Msg("wrote output")

	return nil
}

// Write writes result into dir, creating it if needed. Every file
// name is prefixed with prefix.
func Write(dir string, prefix string, result *parser.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	routes := []*RouteCSV{}
	directionStops := []*DirectionStopCSV{}
	trips := []*TripCSV{}
	tripStops := []*TripStopCSV{}
	for _, r := range result.Routes {
		routes = append(routes, &RouteCSV{
			ID:           r.ID,
			ShortName:    r.ShortName,
			LongName:     r.LongName,
			Color:        r.Color,
			Handling:     r.Handling,
			GTFSRouteIDs: strings.Join(r.GTFSRouteIDs, " "),
		})

		for _, d := range r.Directions {
			for i, stopID := range d.Stops {
				directionStops = append(directionStops, &DirectionStopCSV{
					RouteID:        r.ID,
					DirectionIndex: d.Index,
					Direction:      d.Label(),
					Headsign:       d.Headsign,
					StopIndex:      i,
					StopID:         stopID,
				})
			}

			for _, t := range d.Trips {
				trips = append(trips, &TripCSV{
					RouteID:        r.ID,
					DirectionIndex: d.Index,
					TripID:         t.ID,
					GTFSRouteID:    t.GTFSRouteID,
					ServiceID:      t.ServiceID,
					Departure:      t.Departure,
				})
				for i, s := range t.Stops {
					tripStops = append(tripStops, &TripStopCSV{
						TripID:       t.ID,
						StopIndex:    i,
						StopID:       s.StopID,
						StopSequence: s.Sequence,
						Arrival:      s.Arrival,
						Departure:    s.Departure,
					})
				}
			}
		}
	}

	stops := []*StopCSV{}
	for _, s := range result.Stops {
		stops = append(stops, &StopCSV{
			ID:   s.ID,
			Code: s.Code,
			Name: s.Name,
			Lat:  s.Lat,
			Lon:  s.Lon,
		})
	}

	for _, file := range []struct {
		name string
		rows interface{}
	}{
		{RoutesFile, &routes},
		{DirectionStopsFile, &directionStops},
		{TripsFile, &trips},
		{TripStopsFile, &tripStops},
		{StopsFile, &stops},
	} {
		if err := writeFile(dir, prefix+file.name, file.rows); err != nil {
			return err
		}
	}

	log.Info().
		Str("dir", dir).
		Int("routes", len(routes)).
		Int("trips", len(trips)).
		Int("stops", len(stops)).
		Msg("wrote schedule")

	return nil
}
