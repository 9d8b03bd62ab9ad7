package parser_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parser "github.com/mtransitapps/ca-brandon-transit-bus-parser"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/agency"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/metrics"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/storage"
	gtfstest "github.com/mtransitapps/ca-brandon-transit-bus-parser/testutil"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

func newGenerator(t *testing.T, s storage.Storage) *parser.Generator {
	registry, err := agency.Registry()
	require.NoError(t, err)
	return parser.NewGenerator(s, registry)
}

func directionSummary(route *parser.Route) map[string][]string {
	summary := map[string][]string{}
	for _, d := range route.Directions {
		trips := []string{}
		for _, trip := range d.Trips {
			trips = append(trips, trip.ID)
		}
		summary[d.Label()+" "+d.Headsign] = append(append([]string{}, d.Stops...), trips...)
	}
	return summary
}

func TestGenerate(t *testing.T) {
	for _, backend := range gtfstest.Backends() {
		t.Run(backend, func(t *testing.T) {
			schedule := gtfstest.BuildSchedule(t, backend, gtfstest.BrandonFeed())
			g := newGenerator(t, gtfstest.BuildStorage(t, backend))

			result, err := g.Generate(context.Background(), schedule, "20231010")
			require.NoError(t, err)

			assert.Equal(t, "20231010", result.Date)
			assert.Equal(t, "20231010", result.EffectiveDate)
			assert.Equal(t, []string{"WKD"}, result.Services)

			require.Equal(t, 3, len(result.Routes))
			r4, r5, r20 := result.Routes[0], result.Routes[1], result.Routes[2]

			// Route 4 is split by its trip spec, regardless of
			// direction_id. The terminal stays at the end of
			// travel however many local stops lead to it.
			assert.Equal(t, int64(4), r4.ID)
			assert.Equal(t, "4", r4.ShortName)
			assert.Equal(t, "Victoria", r4.LongName)
			assert.Equal(t, "409AED", r4.Color)
			assert.Equal(t, []string{"4"}, r4.GTFSRouteIDs)
			assert.Equal(t, metrics.HandlingSpec, r4.Handling)
			require.Equal(t, 2, len(r4.Directions))
			assert.Equal(t, tripspec.North, r4.Directions[0].Direction)
			assert.Equal(t, tripspec.South, r4.Directions[1].Direction)
			assert.Equal(t, map[string][]string{
				"north TransCanada": {
					"1", "1001", "1020", "1040", "1051", "1056",
					"4-N2", "4-N1", "4-N3",
				},
				"south Downtown Terminal": {
					"1056", "1065", "1080", "1081", "1082", "1",
					"4-S1", "4-S2",
				},
			}, directionSummary(r4))

			assert.Equal(t, &parser.Trip{
				ID:          "4-N1",
				GTFSRouteID: "4",
				ServiceID:   "WKD",
				Departure:   "071500",
				Stops: []*parser.TripStop{
					{StopID: "1", Sequence: 1, Arrival: "071500", Departure: "071500"},
					{StopID: "1051", Sequence: 2},
					{StopID: "1056", Sequence: 3, Arrival: "073100", Departure: "073200"},
				},
			}, r4.Directions[0].Trips[1])

			// Route 5 has one GTFS direction, headed by the
			// route's long name.
			assert.Equal(t, int64(5), r5.ID)
			assert.Equal(t, "Richmond Ave", r5.LongName)
			assert.Equal(t, metrics.HandlingDefault, r5.Handling)
			assert.Equal(t, map[string][]string{
				"0 Richmond Ave": {"1", "5001", "5-1"},
			}, directionSummary(r5))

			// City Circular halves merge into one route, with
			// direction taken from the GTFS route ID.
			assert.Equal(t, int64(20), r20.ID)
			assert.Equal(t, "20", r20.ShortName)
			assert.Equal(t, "City Circular 20", r20.LongName)
			assert.Equal(t, "7DCC2B", r20.Color)
			assert.Equal(t, []string{"20E", "20W"}, r20.GTFSRouteIDs)
			assert.Equal(t, metrics.HandlingDefault, r20.Handling)
			assert.Equal(t, map[string][]string{
				"east Downtown Terminal": {"2001", "2002", "1", "20E-1"},
				"west Shoppers Mall":     {"1", "2002", "2001", "20W-1"},
			}, directionSummary(r20))

			stops := map[string]string{}
			for _, s := range result.Stops {
				stops[s.ID] = s.Name
			}
			assert.Equal(t, map[string]string{
				"1":    "Downtown Terminal",
				"1001": "Rosser Ave / 10th St",
				"1020": "Princess Ave / 18th St",
				"1040": "18th St / Victoria Ave",
				"1051": "18th St / Aberdeen Ave",
				"1056": "Shoppers Mall",
				"1065": "Victoria Ave / 26th St",
				"1080": "Victoria Ave / 20th St",
				"1081": "Victoria Ave / 13th St",
				"1082": "Victoria Ave / 6th St",
				"2001": "Princess Ave",
				"2002": "1st St",
				"5001": "Richmond Ave / 13th St",
			}, stops)
			assert.Equal(t, "1", result.Stops[0].ID)
			assert.Equal(t, "5001", result.Stops[len(result.Stops)-1].ID)

			m := g.Metrics
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RoutesGenerated.WithLabelValues(metrics.HandlingSpec)))
			assert.Equal(t, float64(2), testutil.ToFloat64(m.RoutesGenerated.WithLabelValues(metrics.HandlingDefault)))
			assert.Equal(t, float64(2), testutil.ToFloat64(m.UnregisteredRoutes))
			assert.Equal(t, float64(3), testutil.ToFloat64(m.TripsAssigned.WithLabelValues("4", "north")))
			assert.Equal(t, float64(2), testutil.ToFloat64(m.TripsAssigned.WithLabelValues("4", "south")))
			assert.Equal(t, float64(6), testutil.ToFloat64(m.CanonicalStops.WithLabelValues("4", "south")))
			assert.Equal(t, float64(1), testutil.ToFloat64(m.TripsAssigned.WithLabelValues("5", "0")))
			assert.Equal(t, float64(3), testutil.ToFloat64(m.CanonicalStops.WithLabelValues("20", "west")))
		})
	}
}

func TestGenerateRollsForward(t *testing.T) {
	schedule := gtfstest.BuildSchedule(t, "memory", gtfstest.BrandonFeed())
	g := newGenerator(t, storage.NewMemoryStorage())

	result, err := g.Generate(context.Background(), schedule, "20231009")
	require.NoError(t, err)
	assert.Equal(t, "20231009", result.Date)
	assert.Equal(t, "20231010", result.EffectiveDate)
	assert.Equal(t, 3, len(result.Routes))

	_, err = g.Generate(context.Background(), schedule, "20240101")
	assert.True(t, errors.Is(err, parser.ErrNoActiveService))
}

func TestGenerateSaturday(t *testing.T) {
	schedule := gtfstest.BuildSchedule(t, "sqlite", gtfstest.BrandonFeed())
	g := newGenerator(t, storage.NewMemoryStorage())

	result, err := g.Generate(context.Background(), schedule, "20231007")
	require.NoError(t, err)
	assert.Equal(t, []string{"SAT"}, result.Services)

	require.Equal(t, 2, len(result.Routes))
	assert.Equal(t, int64(5), result.Routes[0].ID)
	assert.Equal(t, map[string][]string{
		"0 Richmond Ave": {"1", "5001", "5-SAT"},
	}, directionSummary(result.Routes[0]))
	assert.Equal(t, int64(11), result.Routes[1].ID)
	assert.Equal(t, map[string][]string{
		"0 ACC": {"1", "5002", "11-SAT"},
	}, directionSummary(result.Routes[1]))

	ids := []string{}
	for _, s := range result.Stops {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"1", "5001", "5002"}, ids)
}

func TestGenerateDefaultDate(t *testing.T) {
	schedule := gtfstest.BuildSchedule(t, "memory", gtfstest.BrandonFeed())
	g := newGenerator(t, storage.NewMemoryStorage())
	g.TimeNow = func() time.Time {
		// Tuesday night in Brandon, Wednesday in UTC
		return time.Date(2023, 10, 11, 3, 0, 0, 0, time.UTC)
	}

	result, err := g.Generate(context.Background(), schedule, "")
	require.NoError(t, err)
	assert.Equal(t, "20231010", result.Date)
}

func ambiguousFeed() map[string][]string {
	files := gtfstest.BrandonFeed()
	files["trips.txt"] = append(files["trips.txt"], "4,WKD,4-X,Nowhere,1")
	files["stop_times.txt"] = append(
		files["stop_times.txt"],
		"4-X,13:00:00,13:00:00,1,1",
		"4-X,13:10:00,13:10:00,5001,2",
	)
	return files
}

func TestGenerateAmbiguous(t *testing.T) {
	schedule := gtfstest.BuildSchedule(t, "memory", ambiguousFeed())

	// By default, the whole run fails
	g := newGenerator(t, storage.NewMemoryStorage())
	_, err := g.Generate(context.Background(), schedule, "20231010")
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrAmbiguousRoute))

	var ambiguous *tripspec.AmbiguousTripError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, "4-X", ambiguous.TripID)
	assert.Equal(t, [2]int{0, 0}, ambiguous.Matches)

	// Or the route is left out
	g = newGenerator(t, storage.NewMemoryStorage())
	g.FailOnAmbiguous = false
	result, err := g.Generate(context.Background(), schedule, "20231010")
	require.NoError(t, err)
	ids := []int64{}
	for _, r := range result.Routes {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{5, 20}, ids)
	assert.Equal(t, float64(1), testutil.ToFloat64(g.Metrics.AmbiguousTrips.WithLabelValues("4")))

	// Stops only route 4 visits are gone too
	for _, s := range result.Stops {
		assert.NotEqual(t, "1065", s.ID)
	}
}

func TestGenerateUnknownRoute(t *testing.T) {
	files := gtfstest.BrandonFeed()
	files["routes.txt"] = append(files["routes.txt"], "X,BT,Express,Express,3")
	schedule := gtfstest.BuildSchedule(t, "memory", files)

	g := newGenerator(t, storage.NewMemoryStorage())
	_, err := g.Generate(context.Background(), schedule, "20231010")
	assert.True(t, errors.Is(err, agency.ErrUnknownRoute))
}

func TestGenerateCancelled(t *testing.T) {
	schedule := gtfstest.BuildSchedule(t, "memory", gtfstest.BrandonFeed())
	g := newGenerator(t, storage.NewMemoryStorage())
	g.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, schedule, "20231010")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadFeed(t *testing.T) {
	feed := gtfstest.BuildZip(t, gtfstest.BrandonFeed())

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(feed)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "google_transit.zip")
	require.NoError(t, os.WriteFile(path, feed, 0o644))

	for _, backend := range gtfstest.Backends() {
		t.Run(backend, func(t *testing.T) {
			s := gtfstest.BuildStorage(t, backend)
			g := newGenerator(t, s)
			g.TimeNow = func() time.Time {
				return time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)
			}

			// First load parses
			schedule, err := g.LoadFeed(context.Background(), server.URL)
			require.NoError(t, err)
			assert.Equal(t, server.URL, schedule.Metadata.URL)
			assert.Equal(t, "20230904", schedule.Metadata.CalendarStartDate)
			assert.Equal(t, "20231231", schedule.Metadata.CalendarEndDate)
			assert.Equal(t, float64(1), testutil.ToFloat64(g.Metrics.FeedLoads.WithLabelValues(metrics.FeedParsed)))

			// Same data from a file is reused, and recorded
			// under the file's path
			schedule, err = g.LoadFeed(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, path, schedule.Metadata.URL)
			assert.Equal(t, float64(1), testutil.ToFloat64(g.Metrics.FeedLoads.WithLabelValues(metrics.FeedParsed)))
			assert.Equal(t, float64(1), testutil.ToFloat64(g.Metrics.FeedLoads.WithLabelValues(metrics.FeedReused)))

			feeds, err := s.ListFeeds(storage.ListFeedsFilter{Hash: schedule.Metadata.Hash})
			require.NoError(t, err)
			assert.Equal(t, 2, len(feeds))

			result, err := g.Generate(context.Background(), schedule, "20231010")
			require.NoError(t, err)
			assert.Equal(t, 3, len(result.Routes))
		})
	}

	// One download per generator
	assert.Equal(t, len(gtfstest.Backends()), requests)
}

func TestLoadFeedForgetsSupersededData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google_transit.zip")
	first := gtfstest.BuildZip(t, gtfstest.BrandonFeed())

	for _, backend := range gtfstest.Backends() {
		t.Run(backend, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, first, 0o644))

			s := gtfstest.BuildStorage(t, backend)
			g := newGenerator(t, s)

			old, err := g.LoadFeed(context.Background(), path)
			require.NoError(t, err)

			// A new timetable replaces the old at the same path
			files := gtfstest.BrandonFeed()
			files["calendar_dates.txt"] = append(files["calendar_dates.txt"], "WKD,20231113,2")
			require.NoError(t, os.WriteFile(path, gtfstest.BuildZip(t, files), 0o644))

			schedule, err := g.LoadFeed(context.Background(), path)
			require.NoError(t, err)
			require.NotEqual(t, old.Metadata.Hash, schedule.Metadata.Hash)

			feeds, err := s.ListFeeds(storage.ListFeedsFilter{URL: path})
			require.NoError(t, err)
			require.Equal(t, 1, len(feeds))
			assert.Equal(t, schedule.Metadata.Hash, feeds[0].Hash)

			assert.Equal(t, float64(2), testutil.ToFloat64(g.Metrics.FeedLoads.WithLabelValues(metrics.FeedParsed)))

			// Only the record goes; the old data is still readable
			trips, err := old.Reader.RouteTrips("4")
			require.NoError(t, err)
			assert.NotEqual(t, 0, len(trips))
		})
	}
}

func TestLoadFeedErrors(t *testing.T) {
	g := newGenerator(t, storage.NewMemoryStorage())

	_, err := g.LoadFeed(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err = g.LoadFeed(context.Background(), path)
	assert.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	_, err = g.LoadFeed(context.Background(), server.URL)
	assert.Error(t, err)
}
