package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
)

// Helpers shared by the SQL backends.

// Bit of date's weekday in a calendar's weekdays mask.
func weekdayOf(date string) (int, error) {
	day, err := time.Parse("20060102", date)
	if err != nil {
		return 0, fmt.Errorf("invalid date: %s", date)
	}
	return int(day.Weekday()), nil
}

// Services running on a date: the regular calendar, less removals,
// plus additions. Placeholders are given in the backend's syntax, and
// scope, if set, is a condition ending in AND that picks the feed.
func activeServicesQuery(scope string, date string, weekday string) string {
	return fmt.Sprintf(`
SELECT service_id FROM calendar
WHERE %[3]s (weekdays >> %[2]s) & 1 = 1
  AND start_date <= %[1]s AND end_date >= %[1]s
  AND service_id NOT IN (
      SELECT service_id FROM calendar_dates
      WHERE %[3]s date = %[1]s AND exception_type = 2
  )
UNION
SELECT service_id FROM calendar_dates
WHERE %[3]s date = %[1]s AND exception_type = 1
ORDER BY service_id`, date, weekday, scope)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Rows selected as id, route_id, service_id, headsign, direction_id.
func scanTrips(rows *sql.Rows) ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for rows.Next() {
		t := &model.Trip{}
		if err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.DirectionID); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// Rows selected as trip_id, stop_id, stop_sequence, arrival,
// departure.
func scanStopTimes(rows *sql.Rows) ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &st.Arrival, &st.Departure); err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}
	return stopTimes, rows.Err()
}

// Rows selected as url, hash, retrieved_at, timezone, calendar_start,
// calendar_end, max_arrival, max_departure.
func scanFeedMetadata(rows *sql.Rows) ([]*FeedMetadata, error) {
	feeds := []*FeedMetadata{}
	for rows.Next() {
		f := &FeedMetadata{}
		err := rows.Scan(
			&f.URL,
			&f.Hash,
			&f.RetrievedAt,
			&f.Timezone,
			&f.CalendarStartDate,
			&f.CalendarEndDate,
			&f.MaxArrival,
			&f.MaxDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		f.RetrievedAt = f.RetrievedAt.UTC()
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}
