package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

// Rows buffered before a COPY
const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

// PSQLStorage keeps every feed in one set of tables, keyed by hash.
type PSQLStorage struct {
	db *sql.DB
}

var psqlTables = []struct {
	name   string
	schema string
}{
	{"feed", `
CREATE TABLE IF NOT EXISTS feed (
    url TEXT NOT NULL,
    hash TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    timezone TEXT NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (url, hash)
);`},
	{"agency", `
CREATE TABLE IF NOT EXISTS agency (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    color TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);`},
	{"calendar", `
CREATE TABLE IF NOT EXISTS calendar (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekdays INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id)
);`},
	{"calendar_dates", `
CREATE TABLE IF NOT EXISTS calendar_dates (
    hash TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (hash, service_id, date)
);`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    hash TEXT NOT NULL,
    route_id TEXT NOT NULL,
    id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    PRIMARY KEY (hash, route_id, id)
);`},
	{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    hash TEXT NOT NULL,
    route_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    stop_id TEXT NOT NULL,
    arrival TEXT NOT NULL,
    departure TEXT NOT NULL,
    PRIMARY KEY (hash, route_id, trip_id, stop_sequence)
);`},
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	for _, table := range psqlTables {
		if clearDB {
			if _, err := db.Exec(`DROP TABLE IF EXISTS ` + table.name); err != nil {
				db.Close()
				return nil, fmt.Errorf("dropping %s: %w", table.name, err)
			}
		}
		if _, err := db.Exec(table.schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s: %w", table.name, err)
		}
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	rows, err := s.db.Query(`
SELECT url, hash, retrieved_at, timezone, calendar_start, calendar_end, max_arrival, max_departure
FROM feed
WHERE ($1 = '' OR url = $1) AND ($2 = '' OR hash = $2)
ORDER BY retrieved_at DESC`, filter.URL, filter.Hash)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	return scanFeedMetadata(rows)
}

func (s *PSQLStorage) WriteFeedMetadata(f *FeedMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO feed (url, hash, retrieved_at, timezone, calendar_start, calendar_end, max_arrival, max_departure)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url, hash) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    timezone = excluded.timezone,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    max_arrival = excluded.max_arrival,
    max_departure = excluded.max_departure`,
		f.URL,
		f.Hash,
		f.RetrievedAt.UTC(),
		f.Timezone,
		f.CalendarStartDate,
		f.CalendarEndDate,
		f.MaxArrival,
		f.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) DeleteFeedMetadata(url string, hash string) error {
	if _, err := s.db.Exec(`DELETE FROM feed WHERE url = $1 AND hash = $2`, url, hash); err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(hash string) (FeedReader, error) {
	return &psqlFeed{hash: hash, db: s.db}, nil
}

func (s *PSQLStorage) GetWriter(hash string) (FeedWriter, error) {
	for _, table := range psqlTables[1:] {
		if _, err := s.db.Exec(`DELETE FROM `+table.name+` WHERE hash = $1`, hash); err != nil {
			return nil, fmt.Errorf("clearing %s of feed %s: %w", table.name, hash, err)
		}
	}

	return &psqlFeed{
		hash:      hash,
		db:        s.db,
		tripRoute: map[string]string{},
	}, nil
}

// psqlFeed writes and reads the rows of one feed. Trips and stop
// times are buffered and COPY'd in batches.
type psqlFeed struct {
	hash string
	db   *sql.DB

	trips     [][]interface{}
	stopTimes [][]interface{}
	tripRoute map[string]string
}

func (f *psqlFeed) exec(what string, query string, args ...interface{}) error {
	if _, err := f.db.Exec(query, append([]interface{}{f.hash}, args...)...); err != nil {
		return fmt.Errorf("inserting %s: %w", what, err)
	}
	return nil
}

func (f *psqlFeed) WriteAgency(a *model.Agency) error {
	return f.exec("agency", `INSERT INTO agency (hash, id, name, timezone) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Name, a.Timezone)
}

func (f *psqlFeed) WriteStop(s *model.Stop) error {
	return f.exec("stop", `INSERT INTO stops (hash, id, code, name, lat, lon) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Code, s.Name, s.Lat, s.Lon)
}

func (f *psqlFeed) WriteRoute(r *model.Route) error {
	return f.exec("route", `INSERT INTO routes (hash, id, short_name, long_name, color) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.ShortName, r.LongName, r.Color)
}

func (f *psqlFeed) WriteCalendar(c *model.Calendar) error {
	return f.exec("calendar", `INSERT INTO calendar (hash, service_id, start_date, end_date, weekdays) VALUES ($1, $2, $3, $4, $5)`,
		c.ServiceID, c.StartDate, c.EndDate, c.Weekday)
}

func (f *psqlFeed) WriteCalendarDate(cd *model.CalendarDate) error {
	return f.exec("calendar date", `INSERT INTO calendar_dates (hash, service_id, date, exception_type) VALUES ($1, $2, $3, $4)`,
		cd.ServiceID, cd.Date, cd.ExceptionType)
}

// COPYs rows into table in one transaction.
func (f *psqlFeed) copyIn(table string, columns []string, rows [][]interface{}) error {
	tx, err := f.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing COPY %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row...); err != nil {
			return fmt.Errorf("COPY %s: %w", table, err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("flushing COPY %s: %w", table, err)
	}

	return tx.Commit()
}

var (
	psqlTripColumns     = []string{"hash", "route_id", "id", "service_id", "headsign", "direction_id"}
	psqlStopTimeColumns = []string{"hash", "route_id", "trip_id", "stop_sequence", "stop_id", "arrival", "departure"}
)

func (f *psqlFeed) flushTrips() error {
	if err := f.copyIn("trips", psqlTripColumns, f.trips); err != nil {
		return err
	}
	f.trips = f.trips[:0]
	return nil
}

func (f *psqlFeed) flushStopTimes() error {
	if err := f.copyIn("stop_times", psqlStopTimeColumns, f.stopTimes); err != nil {
		return err
	}
	f.stopTimes = f.stopTimes[:0]
	return nil
}

func (f *psqlFeed) BeginTrips() error { return nil }

func (f *psqlFeed) WriteTrip(t *model.Trip) error {
	f.tripRoute[t.ID] = t.RouteID
	f.trips = append(f.trips, []interface{}{f.hash, t.RouteID, t.ID, t.ServiceID, t.Headsign, t.DirectionID})
	if len(f.trips) >= PSQLTripBatchSize {
		return f.flushTrips()
	}
	return nil
}

func (f *psqlFeed) EndTrips() error {
	if len(f.trips) == 0 {
		return nil
	}
	return f.flushTrips()
}

func (f *psqlFeed) BeginStopTimes() error { return nil }

func (f *psqlFeed) WriteStopTime(st *model.StopTime) error {
	routeID, found := f.tripRoute[st.TripID]
	if !found {
		return fmt.Errorf("stop time of unwritten trip '%s'", st.TripID)
	}
	f.stopTimes = append(f.stopTimes, []interface{}{
		f.hash, routeID, st.TripID, st.StopSequence, st.StopID, st.Arrival, st.Departure,
	})
	if len(f.stopTimes) >= PSQLStopTimeBatchSize {
		return f.flushStopTimes()
	}
	return nil
}

func (f *psqlFeed) EndStopTimes() error {
	if len(f.stopTimes) == 0 {
		return nil
	}
	return f.flushStopTimes()
}

func (f *psqlFeed) Close() error {
	f.tripRoute = nil
	if _, err := f.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (f *psqlFeed) Agencies() ([]*model.Agency, error) {
	rows, err := f.db.Query(`SELECT id, name, timezone FROM agency WHERE hash = $1 ORDER BY id`, f.hash)
	if err != nil {
		return nil, fmt.Errorf("querying agencies: %w", err)
	}
	defer rows.Close()

	agencies := []*model.Agency{}
	for rows.Next() {
		a := &model.Agency{}
		if err := rows.Scan(&a.ID, &a.Name, &a.Timezone); err != nil {
			return nil, fmt.Errorf("scanning agency: %w", err)
		}
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}

func (f *psqlFeed) Stops() ([]*model.Stop, error) {
	rows, err := f.db.Query(`SELECT id, code, name, lat, lon FROM stops WHERE hash = $1 ORDER BY id`, f.hash)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []*model.Stop{}
	for rows.Next() {
		s := &model.Stop{}
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func (f *psqlFeed) Routes() ([]*model.Route, error) {
	rows, err := f.db.Query(`SELECT id, short_name, long_name, color FROM routes WHERE hash = $1 ORDER BY id`, f.hash)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		r := &model.Route{}
		if err := rows.Scan(&r.ID, &r.ShortName, &r.LongName, &r.Color); err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (f *psqlFeed) ActiveServices(date string) ([]string, error) {
	weekday, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}

	rows, err := f.db.Query(activeServicesQuery("hash = $3 AND", "$1", "$2"), date, weekday, f.hash)
	if err != nil {
		return nil, fmt.Errorf("querying active services: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (f *psqlFeed) RouteTrips(routeID string) ([]*model.Trip, error) {
	rows, err := f.db.Query(`
SELECT id, route_id, service_id, headsign, direction_id
FROM trips
WHERE hash = $1 AND route_id = $2
ORDER BY id`, f.hash, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying trips of route '%s': %w", routeID, err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (f *psqlFeed) RouteStopTimes(routeID string) ([]*model.StopTime, error) {
	rows, err := f.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival, departure
FROM stop_times
WHERE hash = $1 AND route_id = $2
ORDER BY trip_id, stop_sequence`, f.hash, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times of route '%s': %w", routeID, err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}
