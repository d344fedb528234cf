package livedata

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"blackhole/internal/logging"
)

// RobotsChecker decides whether a URL may be fetched according to the site's
// robots.txt. Parsed files are cached per origin for 24 hours.
type RobotsChecker struct {
	fetcher *Fetcher
	cache   *cache.Cache
	log     *logrus.Entry
}

// NewRobotsChecker creates a checker that downloads robots.txt through fetcher
func NewRobotsChecker(fetcher *Fetcher) *RobotsChecker {
	return &RobotsChecker{
		fetcher: fetcher,
		cache:   cache.New(24*time.Hour, time.Hour),
		log:     logging.Component("robots"),
	}
}

// Allowed reports whether u may be fetched and the crawl delay requested for
// the fetcher's user agent. Missing or unreadable robots.txt allows everything.
func (rc *RobotsChecker) Allowed(ctx context.Context, u *url.URL) (bool, time.Duration) {
	robots := rc.load(ctx, u.Scheme, u.Host)
	if robots == nil {
		return true, 0
	}

	group := robots.FindGroup(rc.fetcher.UserAgent())
	if group == nil {
		return true, 0
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), group.CrawlDelay
}

func (rc *RobotsChecker) load(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	origin := scheme + "://" + host
	if cached, ok := rc.cache.Get(origin); ok {
		robots, _ := cached.(*robotstxt.RobotsData)
		return robots
	}

	var robots *robotstxt.RobotsData
	resp, err := rc.fetcher.do(ctx, &url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"})
	switch {
	case err != nil:
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
			rc.log.WithError(err).WithField("origin", origin).Debug("robots.txt unavailable, allowing")
		}
	default:
		robots, err = robotstxt.FromBytes(resp.Body)
		if err != nil {
			rc.log.WithError(err).WithField("origin", origin).Warn("failed to parse robots.txt, allowing")
			robots = nil
		}
	}

	// nil entries are cached too so a missing file is not refetched on every call
	rc.cache.Set(origin, robots, cache.DefaultExpiration)
	return robots
}
