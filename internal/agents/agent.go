package agents

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"blackhole/internal/database"
	"blackhole/internal/extract"
	"blackhole/internal/livedata"
	"blackhole/internal/logging"
	"blackhole/internal/metrics"
	"blackhole/internal/models"
	"blackhole/internal/ocr"
)

// Agent names as stored in agent_results.agent
const (
	NamePDF      = "pdf_processor"
	NameImage    = "ocr_processor"
	NameSearch   = "archive_search"
	NameLiveData = "live_data"
)

const (
	defaultEmbeddingDims = 256
	defaultLiveDataTTL   = 10 * time.Minute
	defaultMaxFileBytes  = 25 << 20
)

// Agent is implemented by every processing agent
type Agent interface {
	Name() string
	ID() string
	// Validate checks the input shape without side effects
	Validate(in *Input) error
	// Process runs the full lifecycle. On failure the returned result, when
	// non-nil, carries error metadata alongside err.
	Process(ctx context.Context, in *Input) (*models.AgentResult, error)
}

// StoreProvider hands out the current store. The ConnectionManager
// implements it and never returns nil.
type StoreProvider interface {
	Connect(ctx context.Context) database.Store
}

// Deps are the shared dependencies passed to every agent constructor
type Deps struct {
	// Store may be nil, in which case nothing is persisted
	Store   StoreProvider
	Logger  *logrus.Entry
	Metrics *metrics.Metrics
	Clock   func() time.Time

	OCR       ocr.Engine
	PDF       extract.PDFEngine
	Languages []string

	Fetcher     *livedata.Fetcher
	Sources     *livedata.Sources
	Cache       livedata.Cache
	LiveDataTTL time.Duration

	EmbeddingDims int
	MaxFileBytes  int64
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Component("agents")
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.PDF == nil {
		d.PDF = extract.NewPDFEngine()
	}
	if len(d.Languages) == 0 {
		d.Languages = []string{"eng"}
	}
	if d.Fetcher == nil {
		d.Fetcher = livedata.NewFetcher(livedata.FetcherOptions{Client: &http.Client{Timeout: 30 * time.Second}})
	}
	if d.Sources == nil {
		d.Sources = livedata.NewSources(
			livedata.NewWeatherSource(d.Fetcher, livedata.DefaultWeatherURL),
			livedata.NewWebSource(d.Fetcher),
		)
	}
	if d.LiveDataTTL <= 0 {
		d.LiveDataTTL = defaultLiveDataTTL
	}
	if d.EmbeddingDims <= 0 {
		d.EmbeddingDims = defaultEmbeddingDims
	}
	if d.MaxFileBytes <= 0 {
		d.MaxFileBytes = defaultMaxFileBytes
	}
	return d
}

// Persister writes agent-specific records before the agent_results entry.
// It may set fields on result such as DocumentID.
type Persister func(ctx context.Context, store database.Store, p Payload, result *models.AgentResult) error

// Definition describes a concrete agent for Base
type Definition struct {
	Name string
	// Validate extends the base nil check
	Validate func(in *Input) error
	Stages   []Stage
	Output   func(p Payload) models.Output
	Persist  Persister
}

// Base runs the shared lifecycle: begin, validate, run stages, complete,
// persist, return. Concrete agents are Base values built from a Definition.
type Base struct {
	def      Definition
	id       string
	deps     Deps
	log      *logrus.Entry
	fallback *database.FallbackStore
}

// NewBase creates an agent from def
func NewBase(def Definition, deps Deps) *Base {
	deps = deps.withDefaults()
	return &Base{
		def:      def,
		id:       agentID(def.Name),
		deps:     deps,
		log:      deps.Logger.WithField("agent", def.Name),
		fallback: database.NewFallbackStore(""),
	}
}

// agentID is stable across restarts for the same agent name
func agentID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("blackhole/agents/"+name)).String()
}

func (b *Base) Name() string { return b.def.Name }
func (b *Base) ID() string   { return b.id }

// Stages returns a copy of the agent's pipeline
func (b *Base) Stages() []Stage {
	return append([]Stage(nil), b.def.Stages...)
}

// Override replaces the named stage. It is meant for setup, not for use
// while the agent is processing.
func (b *Base) Override(name string, fn StageFunc) error {
	stages, err := WithStage(b.def.Stages, name, fn)
	if err != nil {
		return err
	}
	b.def.Stages = stages
	return nil
}

func (b *Base) Validate(in *Input) error {
	if in == nil {
		return &ValidationError{Agent: b.def.Name, Reason: ErrNilInput.Error(), Err: ErrNilInput}
	}
	if b.def.Validate == nil {
		return nil
	}
	err := b.def.Validate(in)
	var ve *ValidationError
	if err != nil && !errors.As(err, &ve) {
		return &ValidationError{Agent: b.def.Name, Reason: err.Error(), Err: err}
	}
	return err
}

func (b *Base) Process(ctx context.Context, in *Input) (*models.AgentResult, error) {
	now := b.deps.Clock()
	result := &models.AgentResult{
		Agent:    b.def.Name,
		AgentID:  b.id,
		Input:    in.Summary(),
		Metadata: models.NewAgentMetadata(uuid.NewString(), now),
	}
	log := logging.WithInvocation(b.log, b.def.Name, b.id, result.Metadata.InvocationID)

	if err := result.Metadata.Begin(now); err != nil {
		return nil, err
	}

	if err := b.Validate(in); err != nil {
		return b.fail(log, result, err), err
	}

	p, err := RunStages(ctx, b.def.Name, b.def.Stages, Payload{Input: in})
	if err != nil {
		return b.fail(log, result, err), err
	}

	done := b.deps.Clock()
	if b.def.Output != nil {
		result.Output = b.def.Output(p)
	}
	if err := result.Metadata.Complete(done); err != nil {
		return b.fail(log, result, err), err
	}
	result.Timestamp = done

	b.persist(ctx, log, result, p)

	b.deps.Metrics.RecordInvocation(b.def.Name, string(models.StatusCompleted), done.Sub(now).Seconds())
	log.WithFields(logrus.Fields{
		"duration_ms": result.Metadata.DurationMs,
		"text_length": len(models.TextOf(result.Output)),
	}).Info("agent completed")
	return result, nil
}

func (b *Base) fail(log *logrus.Entry, result *models.AgentResult, err error) *models.AgentResult {
	now := b.deps.Clock()
	result.Metadata.Fail(now, err)
	result.Timestamp = now
	b.deps.Metrics.RecordInvocation(b.def.Name, string(models.StatusError), float64(result.Metadata.DurationMs)/1000)

	entry := log.WithError(err)
	var ve *ValidationError
	if errors.As(err, &ve) {
		entry.Warn("agent rejected input")
	} else {
		entry.Error("agent failed")
	}
	return result
}

// persist writes the result. Errors are logged, counted and attached to the
// result as StorageError; they never fail the invocation. Without a store
// provider the writes go to a fallback store.
func (b *Base) persist(ctx context.Context, log *logrus.Entry, result *models.AgentResult, p Payload) {
	var store database.Store = b.fallback
	if b.deps.Store != nil {
		store = b.deps.Store.Connect(ctx)
	}

	var errs []error
	if b.def.Persist != nil {
		if err := b.def.Persist(ctx, store, p, result); err != nil {
			errs = append(errs, flatten(err)...)
		}
	}
	if err := insertResult(ctx, store, result, b.deps.Clock()); err != nil {
		errs = append(errs, err)
	}

	for _, err := range errs {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			b.deps.Metrics.RecordPersistenceFailure(pe.Collection)
		}
		log.WithError(err).Warn("persistence failed, returning unsaved result")
	}
	if len(errs) > 0 {
		result.StorageError = errors.Join(errs...).Error()
	}
	if store.IsFallback() {
		log.Debug("database unavailable, result not stored")
	}
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
