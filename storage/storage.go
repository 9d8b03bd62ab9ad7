package storage

import (
	"time"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

// Storage keeps parsed feeds, keyed by the hash of the zip they came
// from, and a metadata record per (source, hash) pair.
type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	// Removes the record of a source having served a feed. The
	// parsed feed itself is left alone; other sources may share it.
	// Deleting a record that doesn't exist is not an error.
	DeleteFeedMetadata(url string, hash string) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash. Any data
	// previously written for the same hash is discarded.
	GetWriter(feed string) (FeedWriter, error)

	Close() error
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for a static GTFS feed, as retrieved from one source. The
// parsed data can be accessed via FeedReader.
type FeedMetadata struct {
	URL               string
	Hash              string
	RetrievedAt       time.Time
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
	MaxArrival        string
	MaxDeparture      string
}

// Writes GTFS records for a single feed.
//
// BeginTrips/EndTrips and BeginStopTimes/EndStopTimes bracket the
// bulk writes, so backends can batch or sort them.
type FeedWriter interface {
	WriteAgency(agency *model.Agency) error
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	WriteTrip(trip *model.Trip) error
	BeginTrips() error
	EndTrips() error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	WriteStopTime(stopTime *model.StopTime) error
	BeginStopTimes() error
	EndStopTimes() error
	Close() error
}

// Reads what the schedule generator needs from a parsed feed.
type FeedReader interface {
	// Agencies, ordered by ID.
	Agencies() ([]*model.Agency, error)

	Stops() ([]*model.Stop, error)
	Routes() ([]*model.Route, error)

	// Services IDs for all services active on the given
	// date, sorted. Date is given as YYYYMMDD.
	ActiveServices(date string) ([]string, error)

	// Trips of a single route, ordered by trip ID.
	RouteTrips(routeID string) ([]*model.Trip, error)

	// Stop times of all trips of a single route, ordered by trip
	// ID and then stop_sequence.
	RouteStopTimes(routeID string) ([]*model.StopTime, error)
}
