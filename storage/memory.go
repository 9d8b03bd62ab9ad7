package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

type feedKey struct {
	url  string
	hash string
}

// MemoryStorage keeps feeds in maps. Nothing survives the process.
type MemoryStorage struct {
	feeds    map[string]*memoryFeed
	metadata map[feedKey]*FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		feeds:    map[string]*memoryFeed{},
		metadata: map[feedKey]*FeedMetadata{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	feeds := []*FeedMetadata{}
	for key, metadata := range s.metadata {
		if filter.URL != "" && key.url != filter.URL {
			continue
		}
		if filter.Hash != "" && key.hash != filter.Hash {
			continue
		}
		feeds = append(feeds, metadata)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	stored := *feed
	s.metadata[feedKey{feed.URL, feed.Hash}] = &stored
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, hash string) error {
	delete(s.metadata, feedKey{url, hash})
	return nil
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	f, found := s.feeds[feed]
	if !found {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	f := &memoryFeed{
		agencies:        map[string]*model.Agency{},
		stops:           map[string]*model.Stop{},
		routes:          map[string]*model.Route{},
		tripIDs:         map[string]bool{},
		tripsByRoute:    map[string][]*model.Trip{},
		stopTimesByTrip: map[string][]*model.StopTime{},
	}
	s.feeds[feed] = f
	return f, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// A feed as written by the parser, indexed the way the generator
// reads it: trips by route, and stop times by trip.
type memoryFeed struct {
	agencies        map[string]*model.Agency
	stops           map[string]*model.Stop
	routes          map[string]*model.Route
	calendars       []*model.Calendar
	calendarDates   []*model.CalendarDate
	tripIDs         map[string]bool
	tripsByRoute    map[string][]*model.Trip
	stopTimesByTrip map[string][]*model.StopTime
}

func (f *memoryFeed) WriteAgency(agency *model.Agency) error {
	f.agencies[agency.ID] = agency
	return nil
}

func (f *memoryFeed) WriteStop(stop *model.Stop) error {
	f.stops[stop.ID] = stop
	return nil
}

func (f *memoryFeed) WriteRoute(route *model.Route) error {
	f.routes[route.ID] = route
	return nil
}

func (f *memoryFeed) WriteCalendar(cal *model.Calendar) error {
	f.calendars = append(f.calendars, cal)
	return nil
}

func (f *memoryFeed) WriteCalendarDate(cd *model.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, cd)
	return nil
}

func (f *memoryFeed) BeginTrips() error { return nil }

func (f *memoryFeed) WriteTrip(trip *model.Trip) error {
	f.tripIDs[trip.ID] = true
	f.tripsByRoute[trip.RouteID] = append(f.tripsByRoute[trip.RouteID], trip)
	return nil
}

func (f *memoryFeed) EndTrips() error {
	for _, trips := range f.tripsByRoute {
		sort.Slice(trips, func(i, j int) bool {
			return trips[i].ID < trips[j].ID
		})
	}
	return nil
}

func (f *memoryFeed) BeginStopTimes() error { return nil }

func (f *memoryFeed) WriteStopTime(st *model.StopTime) error {
	if !f.tripIDs[st.TripID] {
		return fmt.Errorf("stop time of unwritten trip '%s'", st.TripID)
	}
	f.stopTimesByTrip[st.TripID] = append(f.stopTimesByTrip[st.TripID], st)
	return nil
}

func (f *memoryFeed) EndStopTimes() error {
	for _, stopTimes := range f.stopTimesByTrip {
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})
	}
	return nil
}

func (f *memoryFeed) Close() error { return nil }

// Values of m, ordered by key.
func byID[T any](m map[string]*T) []*T {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	values := make([]*T, 0, len(ids))
	for _, id := range ids {
		values = append(values, m[id])
	}
	return values
}

func (f *memoryFeed) Agencies() ([]*model.Agency, error) {
	return byID(f.agencies), nil
}

func (f *memoryFeed) Stops() ([]*model.Stop, error) {
	return byID(f.stops), nil
}

func (f *memoryFeed) Routes() ([]*model.Route, error) {
	return byID(f.routes), nil
}

func (f *memoryFeed) ActiveServices(date string) ([]string, error) {
	day, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	active := map[string]bool{}
	for _, cal := range f.calendars {
		if cal.RunsOn(day.Weekday()) && cal.StartDate <= date && date <= cal.EndDate {
			active[cal.ServiceID] = true
		}
	}

	// Exceptions override the regular calendar
	for _, cd := range f.calendarDates {
		if cd.Date == date {
			active[cd.ServiceID] = cd.ExceptionType == model.ExceptionTypeAdded
		}
	}

	services := []string{}
	for serviceID, on := range active {
		if on {
			services = append(services, serviceID)
		}
	}
	sort.Strings(services)

	return services, nil
}

func (f *memoryFeed) RouteTrips(routeID string) ([]*model.Trip, error) {
	return append([]*model.Trip{}, f.tripsByRoute[routeID]...), nil
}

func (f *memoryFeed) RouteStopTimes(routeID string) ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	for _, trip := range f.tripsByRoute[routeID] {
		stopTimes = append(stopTimes, f.stopTimesByTrip[trip.ID]...)
	}
	return stopTimes, nil
}
