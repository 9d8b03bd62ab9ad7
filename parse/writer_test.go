package parse

import (
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

// recorder keeps every record handed to it, in the order written.
type recorder struct {
	agencies      []*model.Agency
	stops         []*model.Stop
	routes        []*model.Route
	trips         []*model.Trip
	calendars     []*model.Calendar
	calendarDates []*model.CalendarDate
	stopTimes     []*model.StopTime
}

func newRecorder() *recorder {
	return &recorder{
		agencies:      []*model.Agency{},
		stops:         []*model.Stop{},
		routes:        []*model.Route{},
		trips:         []*model.Trip{},
		calendars:     []*model.Calendar{},
		calendarDates: []*model.CalendarDate{},
		stopTimes:     []*model.StopTime{},
	}
}

func (r *recorder) WriteAgency(a *model.Agency) error {
	r.agencies = append(r.agencies, a)
	return nil
}

func (r *recorder) WriteStop(s *model.Stop) error {
	r.stops = append(r.stops, s)
	return nil
}

func (r *recorder) WriteRoute(route *model.Route) error {
	r.routes = append(r.routes, route)
	return nil
}

func (r *recorder) WriteTrip(t *model.Trip) error {
	r.trips = append(r.trips, t)
	return nil
}

func (r *recorder) WriteCalendar(c *model.Calendar) error {
	r.calendars = append(r.calendars, c)
	return nil
}

func (r *recorder) WriteCalendarDate(cd *model.CalendarDate) error {
	r.calendarDates = append(r.calendarDates, cd)
	return nil
}

func (r *recorder) WriteStopTime(st *model.StopTime) error {
	r.stopTimes = append(r.stopTimes, st)
	return nil
}

func (r *recorder) BeginTrips() error     { return nil }
func (r *recorder) EndTrips() error       { return nil }
func (r *recorder) BeginStopTimes() error { return nil }
func (r *recorder) EndStopTimes() error   { return nil }
func (r *recorder) Close() error          { return nil }
