package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/storage"
)

type TripCSV struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	DirectionID string `csv:"direction_id"`
}

// direction_id may be left out. Brandon publishes 0 for both ways of
// most routes, so it's only kept for routes without a trip spec.
func parseDirectionID(s string) (int8, error) {
	switch strings.TrimSpace(s) {
	case "", "0":
		return 0, nil
	case "1":
		return 1, nil
	}
	return 0, fmt.Errorf("invalid direction_id '%s'", s)
}

// ParseTrips streams trips.txt into writer. Every trip must belong to
// a known route and service. Returns the set of trip IDs.
func ParseTrips(
	writer storage.FeedWriter,
	data io.Reader,
	routes map[string]bool,
	services map[string]bool,
) (map[string]bool, error) {
	trips := map[string]bool{}

	row := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(t *TripCSV) error {
		row++
		switch {
		case t.ID == "":
			return fmt.Errorf("empty trip_id (row %d)", row)
		case trips[t.ID]:
			return fmt.Errorf("repeated trip_id '%s' (row %d)", t.ID, row)
		case t.RouteID == "":
			return fmt.Errorf("empty route_id for trip '%s'", t.ID)
		case !routes[t.RouteID]:
			return fmt.Errorf("trip '%s' has unknown route_id '%s'", t.ID, t.RouteID)
		case !services[t.ServiceID]:
			return fmt.Errorf("trip '%s' has unknown service_id '%s'", t.ID, t.ServiceID)
		}
		trips[t.ID] = true

		directionID, err := parseDirectionID(t.DirectionID)
		if err != nil {
			return errors.Wrapf(err, "trip '%s'", t.ID)
		}

		return errors.Wrapf(writer.WriteTrip(&model.Trip{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    strings.TrimSpace(t.Headsign),
			DirectionID: directionID,
		}), "writing trip '%s'", t.ID)
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling trips csv")
	}

	return trips, nil
}
