package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"blackhole/internal/database"
	"blackhole/internal/livedata"
	"blackhole/internal/models"
)

// Cache tiers reported in LiveDataOutput.CacheTier
const (
	TierDatabase = "database"
	TierMiss     = "miss"
)

// LiveDataAgent serves live data from the first tier that has a fresh copy:
// the cache, then the live_data collection, then the source itself.
type LiveDataAgent struct {
	*Base
}

// NewLiveDataAgent creates the live-data agent
func NewLiveDataAgent(deps Deps) *LiveDataAgent {
	deps = deps.withDefaults()
	l := &liveStages{deps: deps}
	return &LiveDataAgent{NewBase(Definition{
		Name:     NameLiveData,
		Validate: l.validate,
		Stages: []Stage{
			{Name: "resolve", Fn: l.resolve},
			{Name: "cache", Fn: l.cached},
			{Name: "database", Fn: l.stored},
			{Name: "fetch", Fn: l.fetch},
		},
		Output:  func(p Payload) models.Output { return *p.Live },
		Persist: l.persist,
	}, deps)}
}

type liveStages struct {
	deps Deps
}

func sourceName(in *Input) string {
	if s := strings.TrimSpace(in.Source); s != "" {
		return strings.ToLower(s)
	}
	return livedata.SourceWeather
}

func (l *liveStages) validate(in *Input) error {
	if strings.TrimSpace(in.Source) == "" && strings.TrimSpace(in.Query) == "" {
		return &ValidationError{Agent: NameLiveData, Reason: "source or query is required"}
	}
	if _, err := l.deps.Sources.Get(sourceName(in)); err != nil {
		return &ValidationError{
			Agent:  NameLiveData,
			Reason: fmt.Sprintf("%v; available: %s", err, strings.Join(l.deps.Sources.Names(), ", ")),
			Err:    err,
		}
	}
	return nil
}

func (l *liveStages) resolve(_ context.Context, p Payload) (Payload, error) {
	p.Live = &models.LiveDataOutput{
		Source: sourceName(p.Input),
		Query:  livedata.NormalizeQuery(p.Input.Query),
	}
	return p, nil
}

func (l *liveStages) cached(ctx context.Context, p Payload) (Payload, error) {
	if l.deps.Cache == nil || p.Input.Options.NoCache {
		return p, nil
	}
	entry, ok, err := l.deps.Cache.Get(ctx, livedata.Key(p.Live.Source, p.Live.Query))
	if err != nil {
		l.deps.Logger.WithError(err).Warn("live data cache lookup failed")
		return p, nil
	}
	now := l.deps.Clock()
	if !ok || !now.Before(entry.ExpiresAt) {
		return p, nil
	}
	out := *p.Live
	out.Data = entry.Data
	out.Cached = true
	out.CacheTier = l.deps.Cache.Name()
	out.FetchedAt = entry.FetchedAt
	out.ExpiresAt = entry.ExpiresAt
	p.Live = &out
	l.deps.Metrics.RecordCacheLookup(out.CacheTier)
	return p, nil
}

func (l *liveStages) stored(ctx context.Context, p Payload) (Payload, error) {
	if p.Live.Data != nil || l.deps.Store == nil || p.Input.Options.NoCache {
		return p, nil
	}
	store := l.deps.Store.Connect(ctx)
	if store.IsFallback() {
		return p, nil
	}

	now := l.deps.Clock()
	var rec models.LiveDataRecord
	filter := bson.M{
		"source":     p.Live.Source,
		"query":      p.Live.Query,
		"expires_at": bson.M{"$gt": now},
	}
	found, err := store.Collection(database.CollectionLiveData).FindOne(ctx, filter, &rec)
	if err != nil {
		l.deps.Logger.WithError(err).Warn("live data lookup failed")
		return p, nil
	}
	if !found || rec.Expired(now) {
		return p, nil
	}
	out := *p.Live
	out.Data = rec.Data
	out.Cached = true
	out.CacheTier = TierDatabase
	out.FetchedAt = rec.FetchedAt
	out.ExpiresAt = rec.ExpiresAt
	p.Live = &out
	l.deps.Metrics.RecordCacheLookup(TierDatabase)
	return p, nil
}

func (l *liveStages) fetch(ctx context.Context, p Payload) (Payload, error) {
	if p.Live.Data != nil {
		return p, nil
	}
	src, err := l.deps.Sources.Get(p.Live.Source)
	if err != nil {
		return p, err
	}
	data, err := src.Fetch(ctx, p.Live.Query)
	if err != nil {
		return p, err
	}
	now := l.deps.Clock()
	out := *p.Live
	out.Data = data
	out.Cached = false
	out.FetchedAt = now
	out.ExpiresAt = now.Add(l.deps.LiveDataTTL)
	p.Live = &out
	l.deps.Metrics.RecordCacheLookup(TierMiss)
	return p, nil
}

// persist refreshes the tiers that did not serve the request
func (l *liveStages) persist(ctx context.Context, store database.Store, p Payload, _ *models.AgentResult) error {
	live := p.Live
	var errs []error

	if !live.Cached {
		filter := bson.M{"source": live.Source, "query": live.Query}
		update := bson.M{"$set": bson.M{
			"data":       live.Data,
			"cached":     true,
			"fetched_at": live.FetchedAt,
			"expires_at": live.ExpiresAt,
		}}
		if _, err := store.Collection(database.CollectionLiveData).UpdateOne(ctx, filter, update, true); err != nil {
			errs = append(errs, &PersistenceError{Collection: database.CollectionLiveData, Err: err})
		}
	}

	if l.deps.Cache != nil && (!live.Cached || live.CacheTier == TierDatabase) {
		ttl := live.ExpiresAt.Sub(l.deps.Clock())
		if ttl > 0 {
			entry := &livedata.Entry{Data: live.Data, FetchedAt: live.FetchedAt, ExpiresAt: live.ExpiresAt}
			if err := l.deps.Cache.Set(ctx, livedata.Key(live.Source, live.Query), entry, ttl); err != nil {
				errs = append(errs, &PersistenceError{Collection: "cache:" + l.deps.Cache.Name(), Err: err})
			}
		}
	}

	return errors.Join(errs...)
}
