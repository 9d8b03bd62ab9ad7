package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/storage"
)

var ErrNoActiveService = errors.New("no active service")

// Schedule is a parsed static feed, as loaded by a Generator.
type Schedule struct {
	Metadata *storage.FeedMetadata
	Reader   storage.FeedReader

	// The feed's first agency by ID. Brandon's feed has just the one.
	Agency *model.Agency

	location *time.Location
}

func NewSchedule(reader storage.FeedReader, metadata *storage.FeedMetadata) (*Schedule, error) {
	location, err := time.LoadLocation(metadata.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	agencies, err := reader.Agencies()
	if err != nil {
		return nil, fmt.Errorf("getting agencies: %w", err)
	}
	if len(agencies) == 0 {
		return nil, fmt.Errorf("feed %s has no agency", metadata.Hash)
	}
	for _, a := range agencies {
		if a.Timezone != metadata.Timezone {
			return nil, fmt.Errorf("agency '%s' is in %s, feed is in %s", a.ID, a.Timezone, metadata.Timezone)
		}
	}

	return &Schedule{
		Metadata: metadata,
		Reader:   reader,
		Agency:   agencies[0],
		location: location,
	}, nil
}

func (s *Schedule) Location() *time.Location {
	return s.location
}

// Today is the date at now in the feed's timezone, as YYYYMMDD.
func (s *Schedule) Today(now time.Time) string {
	return now.In(s.location).Format("20060102")
}

// UsefulServices returns the services active on date, along with the
// date they were found for. Dates without service (holidays, or a
// date before the feed's calendar starts) roll forward to the next
// date with service, up to the end of the calendar.
func (s *Schedule) UsefulServices(date string) (string, []string, error) {
	day, err := time.ParseInLocation("20060102", date, s.location)
	if err != nil {
		return "", nil, fmt.Errorf("parsing date '%s': %w", date, err)
	}

	if start := s.Metadata.CalendarStartDate; start != "" && date < start {
		day, err = time.ParseInLocation("20060102", start, s.location)
		if err != nil {
			return "", nil, fmt.Errorf("parsing calendar start '%s': %w", start, err)
		}
	}

	end := s.Metadata.CalendarEndDate
	for d := day.Format("20060102"); d <= end; d = day.Format("20060102") {
		services, err := s.Reader.ActiveServices(d)
		if err != nil {
			return "", nil, fmt.Errorf("getting active services on %s: %w", d, err)
		}
		if len(services) > 0 {
			return d, services, nil
		}
		day = day.AddDate(0, 0, 1)
	}

	return "", nil, fmt.Errorf("%w on or after %s (calendar ends %s)", ErrNoActiveService, date, end)
}
