package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// MemoryDownloader keeps feeds fetched by this process, keyed by
// URL. Concurrent requests for a URL that isn't cached share a single
// download.
type MemoryDownloader struct {
	TimeNow func() time.Time

	mutex   sync.Mutex
	feeds   map[string]memoryFeed
	fetches singleflight.Group
}

type memoryFeed struct {
	body      []byte
	fetchedAt time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow: time.Now,
		feeds:   map[string]memoryFeed{},
	}
}

// Expired entries are dropped on lookup.
func (d *MemoryDownloader) lookup(url string, ttl time.Duration) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	feed, found := d.feeds[url]
	if !found {
		return nil, false
	}
	if d.TimeNow().Sub(feed.fetchedAt) >= ttl {
		delete(d.feeds, url)
		return nil, false
	}
	return feed.body, true
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	if body, found := d.lookup(url, options.CacheTTL); found {
		log.Debug().Str("url", url).Msg("feed served from memory")
		return body, nil
	}

	v, err, shared := d.fetches.Do(url, func() (interface{}, error) {
		// Another caller may have stored it since the lookup
		if body, found := d.lookup(url, options.CacheTTL); found {
			return body, nil
		}

		body, err := HTTPGet(ctx, url, headers, options)
		if err != nil {
			return nil, err
		}

		d.mutex.Lock()
		d.feeds[url] = memoryFeed{body: body, fetchedAt: d.TimeNow()}
		d.mutex.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("url", url).Msg("joined in-flight download")
	}

	return v.([]byte), nil
}
