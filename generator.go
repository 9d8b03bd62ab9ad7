package parser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/agency"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/downloader"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/metrics"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/parse"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/storage"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

const (
	DefaultWorkers        = 4
	DefaultStaticTimeout  = 60 * time.Second
	DefaultStaticMaxSize  = 800 << 20 // 800 MB
	DefaultStaticCacheTTL = 12 * time.Hour
)

var ErrAmbiguousRoute = errors.New("route has ambiguous trips")

// Generator turns a static GTFS feed into per direction schedules,
// using the trip spec registry for routes whose GTFS directions
// can't be trusted.
type Generator struct {
	Workers         int
	FailOnAmbiguous bool
	StaticTimeout   time.Duration
	StaticMaxSize   int
	StaticCacheTTL  time.Duration
	Headers         map[string]string
	Downloader      downloader.Downloader
	Metrics         *metrics.Metrics
	TimeNow         func() time.Time

	storage  storage.Storage
	registry *tripspec.Registry
}

// Creates a Generator on top of the given storage. Feeds are
// downloaded with an in memory cache; parsed feeds are kept in
// storage and reused by hash.
func NewGenerator(s storage.Storage, registry *tripspec.Registry) *Generator {
	return &Generator{
		Workers:         DefaultWorkers,
		FailOnAmbiguous: true,
		StaticTimeout:   DefaultStaticTimeout,
		StaticMaxSize:   DefaultStaticMaxSize,
		StaticCacheTTL:  DefaultStaticCacheTTL,
		Downloader:      downloader.NewMemoryDownloader(),
		Metrics:         metrics.New(),
		TimeNow:         time.Now,

		storage:  s,
		registry: registry,
	}
}

func (g *Generator) Registry() *tripspec.Registry {
	return g.registry
}

// Close releases the generator's storage.
func (g *Generator) Close() error {
	return g.storage.Close()
}

func isURL(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// LoadFeed loads a static feed from a URL or a local zip file.
//
// Feeds are identified by the hash of their contents. If the same
// data has been parsed before, the copy in storage is used.
func (g *Generator) LoadFeed(ctx context.Context, source string) (*Schedule, error) {
	var body []byte
	var err error
	if isURL(source) {
		body, err = g.Downloader.Get(ctx, source, g.Headers, downloader.GetOptions{
			Cache:    true,
			CacheTTL: g.StaticCacheTTL,
			Timeout:  g.StaticTimeout,
			MaxSize:  g.StaticMaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("downloading feed at %s: %w", source, err)
		}
	} else {
		body, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading feed: %w", err)
		}
	}
	hash := downloader.Hash(body)

	feeds, err := g.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	if len(feeds) > 0 {
		metadata := feeds[0]
		for _, feed := range feeds {
			if feed.URL == source {
				metadata = feed
				break
			}
		}

		// Same data under another source. Record it for this
		// one too.
		if metadata.URL != source {
			copied := *metadata
			copied.URL = source
			copied.RetrievedAt = g.TimeNow().UTC()
			err = g.storage.WriteFeedMetadata(&copied)
			if err != nil {
				return nil, fmt.Errorf("writing metadata: %w", err)
			}
			metadata = &copied
		}

		reader, err := g.storage.GetReader(hash)
		if err != nil {
			return nil, fmt.Errorf("getting reader: %w", err)
		}

		if err := g.forgetSuperseded(source, hash); err != nil {
			return nil, err
		}

		g.Metrics.FeedLoads.WithLabelValues(metrics.FeedReused).Inc()
		log.Info().Str("source", source).Str("hash", hash).Msg("reusing parsed feed")

		return NewSchedule(reader, metadata)
	}

	writer, err := g.storage.GetWriter(hash)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}

	metadata.Hash = hash
	metadata.URL = source
	metadata.RetrievedAt = g.TimeNow().UTC()
	err = g.storage.WriteFeedMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	reader, err := g.storage.GetReader(hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	if err := g.forgetSuperseded(source, hash); err != nil {
		return nil, err
	}

	g.Metrics.FeedLoads.WithLabelValues(metrics.FeedParsed).Inc()
	log.Info().
		Str("source", source).
		Str("hash", hash).
		Str("calendar_start", metadata.CalendarStartDate).
		Str("calendar_end", metadata.CalendarEndDate).
		Msg("parsed feed")

	return NewSchedule(reader, metadata)
}

// Drops the records of source having served anything but hash. The
// parsed data stays, since other sources may still serve it.
func (g *Generator) forgetSuperseded(source string, hash string) error {
	feeds, err := g.storage.ListFeeds(storage.ListFeedsFilter{URL: source})
	if err != nil {
		return fmt.Errorf("listing feeds of %s: %w", source, err)
	}

	for _, feed := range feeds {
		if feed.Hash == hash {
			continue
		}
		if err := g.storage.DeleteFeedMetadata(source, feed.Hash); err != nil {
			return fmt.Errorf("forgetting feed %s of %s: %w", feed.Hash, source, err)
		}
		log.Info().Str("source", source).Str("hash", feed.Hash).Msg("forgot superseded feed")
	}

	return nil
}

// Generate builds every route with service on date (YYYYMMDD, or
// today in the feed's timezone if blank). Routes are generated in
// parallel.
//
// A route with ambiguous trips fails the whole run if
// FailOnAmbiguous is set. Otherwise it's left out of the result.
func (g *Generator) Generate(ctx context.Context, schedule *Schedule, date string) (*Result, error) {
	if date == "" {
		date = schedule.Today(g.TimeNow())
	}

	effectiveDate, services, err := schedule.UsefulServices(date)
	if err != nil {
		return nil, err
	}
	if effectiveDate != date {
		log.Info().
			Str("date", date).
			Str("effective_date", effectiveDate).
			Msg("no service on date, using next date with service")
	}
	active := map[string]bool{}
	for _, service := range services {
		active[service] = true
	}

	feedRoutes, err := schedule.Reader.Routes()
	if err != nil {
		return nil, fmt.Errorf("getting routes: %w", err)
	}

	groups := map[int64][]*model.Route{}
	for _, r := range feedRoutes {
		id, err := agency.RouteID(r)
		if err != nil {
			return nil, err
		}
		groups[id] = append(groups[id], r)
	}
	routeIDs := make([]int64, 0, len(groups))
	for id, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].ID < group[j].ID
		})
		routeIDs = append(routeIDs, id)
	}
	slices.Sort(routeIDs)

	workers := g.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := pool.NewWithResults[*Route]().WithContext(ctx).WithMaxGoroutines(workers)
	if g.FailOnAmbiguous {
		p = p.WithCancelOnError()
	}
	for _, id := range routeIDs {
		p.Go(func(ctx context.Context) (*Route, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			route, err := g.generateRoute(schedule.Reader, id, groups[id], active)
			if err != nil && errors.Is(err, ErrAmbiguousRoute) && !g.FailOnAmbiguous {
				log.Warn().Err(err).Int64("route", id).Msg("skipping route")
				return nil, nil
			}
			return route, err
		})
	}

	generated, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("generating routes: %w", err)
	}

	result := &Result{
		Date:          date,
		EffectiveDate: effectiveDate,
		Services:      services,
		Routes:        []*Route{},
		Stops:         []*Stop{},
	}
	for _, route := range generated {
		if route != nil {
			result.Routes = append(result.Routes, route)
		}
	}
	sort.Slice(result.Routes, func(i, j int) bool {
		return result.Routes[i].ID < result.Routes[j].ID
	})

	result.Stops, err = usedStops(schedule.Reader, result.Routes)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("agency", schedule.Agency.Name).
		Str("date", effectiveDate).
		Int("routes", len(result.Routes)).
		Int("stops", len(result.Stops)).
		Msg("generated schedule")

	return result, nil
}

// Stops visited by any generated trip, ordered by ID.
func usedStops(reader storage.FeedReader, routes []*Route) ([]*Stop, error) {
	used := map[string]bool{}
	for _, route := range routes {
		for _, direction := range route.Directions {
			for _, trip := range direction.Trips {
				for _, stop := range trip.Stops {
					used[stop.StopID] = true
				}
			}
		}
	}

	feedStops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting stops: %w", err)
	}

	stops := []*Stop{}
	for _, s := range feedStops {
		if !used[s.ID] {
			continue
		}
		stops = append(stops, &Stop{
			ID:   s.ID,
			Code: s.Code,
			Name: agency.CleanStopName(s.Name),
			Lat:  s.Lat,
			Lon:  s.Lon,
		})
	}
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].ID < stops[j].ID
	})

	return stops, nil
}

// A trip with service on the date, and its stop times.
type feedTrip struct {
	trip      *model.Trip
	stopTimes map[uint32]*model.StopTime
}

func (t *feedTrip) raw(routeID string) *tripspec.RawTrip {
	raw := &tripspec.RawTrip{
		RouteID:     routeID,
		TripID:      t.trip.ID,
		DirectionID: t.trip.DirectionID,
		Stops:       make([]tripspec.StopVisit, 0, len(t.stopTimes)),
	}
	for _, st := range t.stopTimes {
		raw.Stops = append(raw.Stops, tripspec.StopVisit{
			StopID:   st.StopID,
			Sequence: st.StopSequence,
		})
	}
	return raw
}

func (t *feedTrip) occurrences() []tripspec.Occurrence {
	occurrences := make([]tripspec.Occurrence, 0, len(t.stopTimes))
	for _, st := range t.stopTimes {
		occurrences = append(occurrences, tripspec.Occurrence{
			TripID:   t.trip.ID,
			StopID:   st.StopID,
			Sequence: st.StopSequence,
		})
	}
	return occurrences
}

// Output trip with stops in the given order.
func (t *feedTrip) output(ordered []tripspec.Occurrence) *Trip {
	trip := &Trip{
		ID:          t.trip.ID,
		GTFSRouteID: t.trip.RouteID,
		ServiceID:   t.trip.ServiceID,
		Stops:       make([]*TripStop, 0, len(ordered)),
	}
	for _, o := range ordered {
		st := t.stopTimes[o.Sequence]
		if trip.Departure == "" {
			trip.Departure = st.Departure
		}
		trip.Stops = append(trip.Stops, &TripStop{
			StopID:    st.StopID,
			Sequence:  st.StopSequence,
			Arrival:   st.Arrival,
			Departure: st.Departure,
		})
	}
	return trip
}

func sortTrips(trips []*Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].Departure != trips[j].Departure {
			return trips[i].Departure < trips[j].Departure
		}
		return trips[i].ID < trips[j].ID
	})
}

// Returns nil if the route has no trips with service.
func (g *Generator) generateRoute(
	reader storage.FeedReader,
	id int64,
	gtfsRoutes []*model.Route,
	active map[string]bool,
) (*Route, error) {
	start := time.Now()

	first := gtfsRoutes[0]
	color, err := agency.RouteColor(first)
	if err != nil {
		return nil, err
	}

	route := &Route{
		ID:           id,
		ShortName:    agency.RouteShortName(first),
		LongName:     agency.RouteLongName(first),
		Color:        color,
		GTFSRouteIDs: []string{},
		Directions:   []*Direction{},
	}

	trips := []*feedTrip{}
	for _, gr := range gtfsRoutes {
		route.GTFSRouteIDs = append(route.GTFSRouteIDs, gr.ID)

		routeTrips, err := reader.RouteTrips(gr.ID)
		if err != nil {
			return nil, fmt.Errorf("getting trips of route '%s': %w", gr.ID, err)
		}
		stopTimes, err := reader.RouteStopTimes(gr.ID)
		if err != nil {
			return nil, fmt.Errorf("getting stop times of route '%s': %w", gr.ID, err)
		}

		byTrip := map[string]map[uint32]*model.StopTime{}
		for _, st := range stopTimes {
			if byTrip[st.TripID] == nil {
				byTrip[st.TripID] = map[uint32]*model.StopTime{}
			}
			byTrip[st.TripID][st.StopSequence] = st
		}

		for _, t := range routeTrips {
			if !active[t.ServiceID] {
				continue
			}
			if len(byTrip[t.ID]) == 0 {
				log.Debug().Int64("route", id).Str("trip", t.ID).Msg("trip has no stop times")
				continue
			}
			trips = append(trips, &feedTrip{trip: t, stopTimes: byTrip[t.ID]})
		}
	}

	if len(trips) == 0 {
		log.Debug().Int64("route", id).Msg("no trips with service")
		return nil, nil
	}

	spec, found := g.registry.Lookup(strconv.FormatInt(id, 10))
	if found {
		route.Handling = metrics.HandlingSpec
		err = g.resolveRoute(route, spec, trips)
	} else {
		route.Handling = metrics.HandlingDefault
		g.defaultRoute(route, first.LongName, trips)
	}
	if err != nil {
		return nil, err
	}

	key := strconv.FormatInt(id, 10)
	for _, d := range route.Directions {
		g.Metrics.TripsAssigned.WithLabelValues(key, d.Label()).Add(float64(len(d.Trips)))
		g.Metrics.CanonicalStops.WithLabelValues(key, d.Label()).Set(float64(len(d.Stops)))
	}
	g.Metrics.RoutesGenerated.WithLabelValues(route.Handling).Inc()
	g.Metrics.RouteDuration.WithLabelValues(route.Handling).Observe(time.Since(start).Seconds())

	log.Debug().
		Int64("route", id).
		Str("handling", route.Handling).
		Int("trips", len(trips)).
		Msg("generated route")

	return route, nil
}

// Splits the route's trips by its trip spec. Stops of every trip are
// listed in template order.
func (g *Generator) resolveRoute(route *Route, spec *tripspec.Spec, trips []*feedTrip) error {
	key := strconv.FormatInt(route.ID, 10)

	byID := map[string]*feedTrip{}
	raws := make([]*tripspec.RawTrip, 0, len(trips))
	for _, t := range trips {
		byID[t.trip.ID] = t
		raws = append(raws, t.raw(key))
	}

	split, errs := tripspec.Resolve(spec, raws)
	if len(errs) > 0 {
		for _, err := range errs {
			var ambiguous *tripspec.AmbiguousTripError
			if errors.As(err, &ambiguous) {
				g.Metrics.AmbiguousTrips.WithLabelValues(key).Inc()
				log.Warn().Int64("route", route.ID).Str("trip", ambiguous.TripID).Msg(err.Error())
			}
		}
		return fmt.Errorf("route %d: %w: %w", route.ID, ErrAmbiguousRoute, errors.Join(errs...))
	}

	cmp := split.Comparator()
	for i, variant := range split.Variants() {
		direction := &Direction{
			Direction: variant.Direction,
			Index:     i,
			Headsign:  variant.Headsign,
			Stops:     cmp.CanonicalStops(variant.Direction),
			Trips:     make([]*Trip, 0, len(variant.Trips)),
		}
		for _, raw := range variant.Trips {
			t := byID[raw.TripID]
			occurrences := t.occurrences()
			cmp.Sort(occurrences)
			direction.Trips = append(direction.Trips, t.output(occurrences))
		}
		sortTrips(direction.Trips)
		route.Directions = append(route.Directions, direction)
	}

	return nil
}

// Routes without a trip spec keep their GTFS directions. Each
// direction is headed by its most common trip headsign, and its stops
// follow the longest trip.
func (g *Generator) defaultRoute(route *Route, longName string, trips []*feedTrip) {
	g.Metrics.UnregisteredRoutes.Inc()
	log.Info().Int64("route", route.ID).Msg("no trip spec registered, using GTFS directions")

	fixedHeadsign, hasFixedHeadsign := agency.FixedHeadsign(route.ID, longName)

	type bucket struct {
		direction tripspec.Direction
		trips     []*feedTrip
	}
	buckets := map[int8]*bucket{}
	for _, t := range trips {
		direction, index := agency.TripDirection(t.trip.RouteID, t.trip.DirectionID)
		if buckets[index] == nil {
			buckets[index] = &bucket{direction: direction}
		}
		buckets[index].trips = append(buckets[index].trips, t)
	}

	for _, index := range []int8{0, 1} {
		b := buckets[index]
		if b == nil {
			continue
		}

		direction := &Direction{
			Direction: b.direction,
			Index:     int(index),
			Headsign:  fixedHeadsign,
			Stops:     defaultCanonicalStops(b.trips),
			Trips:     make([]*Trip, 0, len(b.trips)),
		}
		if !hasFixedHeadsign {
			direction.Headsign = commonHeadsign(b.trips)
		}

		for _, t := range b.trips {
			occurrences := t.occurrences()
			slices.SortFunc(occurrences, tripspec.DefaultCompare)
			direction.Trips = append(direction.Trips, t.output(occurrences))
		}
		sortTrips(direction.Trips)
		route.Directions = append(route.Directions, direction)
	}
}

// Most frequent cleaned headsign. Ties go to the alphabetically first.
func commonHeadsign(trips []*feedTrip) string {
	counts := map[string]int{}
	for _, t := range trips {
		if headsign := agency.CleanTripHeadsign(t.trip.Headsign); headsign != "" {
			counts[headsign]++
		}
	}

	best, bestCount := "", 0
	for headsign, count := range counts {
		if count > bestCount || (count == bestCount && headsign < best) {
			best, bestCount = headsign, count
		}
	}
	return best
}

// Stops of the longest trip, followed by stops only other trips
// visit.
func defaultCanonicalStops(trips []*feedTrip) []string {
	var longest *feedTrip
	for _, t := range trips {
		if longest == nil ||
			len(t.stopTimes) > len(longest.stopTimes) ||
			(len(t.stopTimes) == len(longest.stopTimes) && t.trip.ID < longest.trip.ID) {
			longest = t
		}
	}

	occurrences := longest.occurrences()
	slices.SortFunc(occurrences, tripspec.DefaultCompare)

	rest := []tripspec.Occurrence{}
	for _, t := range trips {
		if t != longest {
			rest = append(rest, t.occurrences()...)
		}
	}
	slices.SortFunc(rest, tripspec.DefaultCompare)

	seen := map[string]bool{}
	stops := []string{}
	for _, o := range append(occurrences, rest...) {
		if !seen[o.StopID] {
			seen[o.StopID] = true
			stops = append(stops, o.StopID)
		}
	}
	return stops
}
