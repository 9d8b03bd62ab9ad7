package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLiteStorage keeps feed metadata in one database and each parsed
// feed in a database of its own, in memory or as <hash>.db under
// Directory.
type SQLiteStorage struct {
	SQLiteConfig

	metaDB *sql.DB
	feeds  map[string]*sql.DB
}

const sqliteMetadataSchema = `
CREATE TABLE IF NOT EXISTS feed (
    url TEXT NOT NULL,
    hash TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    timezone TEXT NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (url, hash)
);`

// Stop times carry their trip's route, so that a route's schedule
// is read off a single index.
const sqliteFeedSchema = `
CREATE TABLE agency (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    timezone TEXT NOT NULL
);
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);
CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    color TEXT NOT NULL
);
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekdays INTEGER NOT NULL
);
CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);
CREATE TABLE trips (
    route_id TEXT NOT NULL,
    id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    PRIMARY KEY (route_id, id)
);
CREATE TABLE stop_times (
    route_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    stop_id TEXT NOT NULL,
    arrival TEXT NOT NULL,
    departure TEXT NOT NULL,
    PRIMARY KEY (route_id, trip_id, stop_sequence)
);`

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	s := &SQLiteStorage{feeds: map[string]*sql.DB{}}
	if len(cfg) > 0 {
		s.SQLiteConfig = cfg[0]
	}

	source := ":memory:"
	if s.OnDisk {
		source = filepath.Join(s.Directory, "feeds.db")
	}
	db, err := openSQLite(source)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteMetadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}
	s.metaDB = db

	return s, nil
}

// In-memory databases exist per connection, so those get exactly one.
func openSQLite(source string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}
	if source == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *SQLiteStorage) Close() error {
	for hash, db := range s.feeds {
		db.Close()
		delete(s.feeds, hash)
	}
	if err := s.metaDB.Close(); err != nil {
		return fmt.Errorf("closing feed database: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT url, hash, retrieved_at, timezone, calendar_start, calendar_end, max_arrival, max_departure
FROM feed
WHERE (? = '' OR url = ?) AND (? = '' OR hash = ?)
ORDER BY retrieved_at DESC`

	rows, err := s.metaDB.Query(query, filter.URL, filter.URL, filter.Hash, filter.Hash)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	return scanFeedMetadata(rows)
}

func (s *SQLiteStorage) WriteFeedMetadata(f *FeedMetadata) error {
	_, err := s.metaDB.Exec(`
INSERT OR REPLACE INTO feed (url, hash, retrieved_at, timezone, calendar_start, calendar_end, max_arrival, max_departure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteStorage) DeleteFeedMetadata(url string, hash string) error {
	_, err := s.metaDB.Exec(`DELETE FROM feed WHERE url = ? AND hash = ?`, url, hash)
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) feedPath(hash string) string {
	return filepath.Join(s.Directory, hash+".db")
}

func (s *SQLiteStorage) GetReader(hash string) (FeedReader, error) {
	if db, found := s.feeds[hash]; found {
		return &sqliteFeed{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", hash)
	}

	path := s.feedPath(hash)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("feed %s: %w", hash, err)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	s.feeds[hash] = db

	return &sqliteFeed{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(hash string) (FeedWriter, error) {
	if old, found := s.feeds[hash]; found {
		old.Close()
		delete(s.feeds, hash)
	}

	source := ":memory:"
	if s.OnDisk {
		source = s.feedPath(hash)
		if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing old copy of feed %s: %w", hash, err)
		}
	}

	db, err := openSQLite(source)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteFeedSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed tables: %w", err)
	}
	s.feeds[hash] = db

	return &sqliteFeed{
		db:        db,
		tripRoute: map[string]string{},
	}, nil
}

// sqliteFeed is both the writer and the reader of one feed database.
type sqliteFeed struct {
	db *sql.DB

	// Trips and stop times are inserted in one transaction each
	tx   *sql.Tx
	stmt *sql.Stmt

	tripRoute map[string]string
}

func (f *sqliteFeed) exec(what string, query string, args ...interface{}) error {
	if _, err := f.db.Exec(query, args...); err != nil {
		return fmt.Errorf("inserting %s: %w", what, err)
	}
	return nil
}

func (f *sqliteFeed) WriteAgency(a *model.Agency) error {
	return f.exec("agency", `INSERT INTO agency (id, name, timezone) VALUES (?, ?, ?)`,
		a.ID, a.Name, a.Timezone)
}

func (f *sqliteFeed) WriteStop(s *model.Stop) error {
	return f.exec("stop", `INSERT INTO stops (id, code, name, lat, lon) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Code, s.Name, s.Lat, s.Lon)
}

func (f *sqliteFeed) WriteRoute(r *model.Route) error {
	return f.exec("route", `INSERT INTO routes (id, short_name, long_name, color) VALUES (?, ?, ?, ?)`,
		r.ID, r.ShortName, r.LongName, r.Color)
}

func (f *sqliteFeed) WriteCalendar(c *model.Calendar) error {
	return f.exec("calendar", `INSERT INTO calendar (service_id, start_date, end_date, weekdays) VALUES (?, ?, ?, ?)`,
		c.ServiceID, c.StartDate, c.EndDate, c.Weekday)
}

func (f *sqliteFeed) WriteCalendarDate(cd *model.CalendarDate) error {
	return f.exec("calendar date", `INSERT INTO calendar_dates (service_id, date, exception_type) VALUES (?, ?, ?)`,
		cd.ServiceID, cd.Date, cd.ExceptionType)
}

func (f *sqliteFeed) begin(what string, query string) error {
	if f.tx != nil {
		return fmt.Errorf("%s started while another bulk insert is open", what)
	}
	tx, err := f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s: %w", what, err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing %s insert: %w", what, err)
	}
	f.tx, f.stmt = tx, stmt
	return nil
}

func (f *sqliteFeed) insert(what string, args ...interface{}) error {
	if f.stmt == nil {
		return fmt.Errorf("%s written outside of its Begin/End", what)
	}
	if _, err := f.stmt.Exec(args...); err != nil {
		f.stmt.Close()
		f.tx.Rollback()
		f.tx, f.stmt = nil, nil
		return fmt.Errorf("inserting %s: %w", what, err)
	}
	return nil
}

func (f *sqliteFeed) end(what string) error {
	if f.tx == nil {
		return fmt.Errorf("no %s insert in progress", what)
	}
	f.stmt.Close()
	err := f.tx.Commit()
	f.tx, f.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("committing %s: %w", what, err)
	}
	return nil
}

func (f *sqliteFeed) BeginTrips() error {
	return f.begin("trips", `
INSERT INTO trips (route_id, id, service_id, headsign, direction_id)
VALUES (?, ?, ?, ?, ?)`)
}

func (f *sqliteFeed) WriteTrip(t *model.Trip) error {
	f.tripRoute[t.ID] = t.RouteID
	return f.insert("trip", t.RouteID, t.ID, t.ServiceID, t.Headsign, t.DirectionID)
}

func (f *sqliteFeed) EndTrips() error {
	return f.end("trips")
}

func (f *sqliteFeed) BeginStopTimes() error {
	return f.begin("stop times", `
INSERT INTO stop_times (route_id, trip_id, stop_sequence, stop_id, arrival, departure)
VALUES (?, ?, ?, ?, ?, ?)`)
}

func (f *sqliteFeed) WriteStopTime(st *model.StopTime) error {
	routeID, found := f.tripRoute[st.TripID]
	if !found {
		return fmt.Errorf("stop time of unwritten trip '%s'", st.TripID)
	}
	return f.insert("stop time", routeID, st.TripID, st.StopSequence, st.StopID, st.Arrival, st.Departure)
}

func (f *sqliteFeed) EndStopTimes() error {
	return f.end("stop times")
}

func (f *sqliteFeed) Close() error {
	f.tripRoute = nil
	if _, err := f.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("analyzing feed: %w", err)
	}
	return nil
}

func (f *sqliteFeed) Agencies() ([]*model.Agency, error) {
	rows, err := f.db.Query(`SELECT id, name, timezone FROM agency ORDER BY id`)
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

func (f *sqliteFeed) Stops() ([]*model.Stop, error) {
	rows, err := f.db.Query(`SELECT id, code, name, lat, lon FROM stops ORDER BY id`)
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

func (f *sqliteFeed) Routes() ([]*model.Route, error) {
	rows, err := f.db.Query(`SELECT id, short_name, long_name, color FROM routes ORDER BY id`)
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

func (f *sqliteFeed) ActiveServices(date string) ([]string, error) {
	weekday, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}

	rows, err := f.db.Query(activeServicesQuery("", "?1", "?2"), date, weekday)
	if err != nil {
		return nil, fmt.Errorf("querying active services: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (f *sqliteFeed) RouteTrips(routeID string) ([]*model.Trip, error) {
	rows, err := f.db.Query(`
SELECT id, route_id, service_id, headsign, direction_id
FROM trips
WHERE route_id = ?
ORDER BY id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying trips of route '%s': %w", routeID, err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (f *sqliteFeed) RouteStopTimes(routeID string) ([]*model.StopTime, error) {
	rows, err := f.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival, departure
FROM stop_times
WHERE route_id = ?
ORDER BY trip_id, stop_sequence`, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times of route '%s': %w", routeID, err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}
