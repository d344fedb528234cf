package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"blackhole/internal/database"
	"blackhole/internal/extract"
	"blackhole/internal/logging"
	"blackhole/internal/models"
)

// Request is the typed dispatch request accepted from the transport layer
type Request struct {
	Type    string `json:"type"`
	Payload Input  `json:"payload"`
}

// Info describes one registered agent
type Info struct {
	Type Kind   `json:"type"`
	Name string `json:"name"`
	ID   string `json:"id"`
}

// detector classifies an unclassified input. Detectors are tried in order
// and the first match wins: a PDF file is routed to the PDF agent even when
// the input also carries a query.
type detector struct {
	kind  Kind
	match func(in *Input) bool
}

var detectors = []detector{
	{KindPDF, isPDFInput},
	{KindImage, isImageInput},
	{KindLiveData, func(in *Input) bool { return strings.TrimSpace(in.Source) != "" }},
	{KindSearch, func(in *Input) bool { return strings.TrimSpace(in.Query) != "" }},
}

func isPDFInput(in *Input) bool {
	if !in.File.Empty() && extract.IsPDFType(in.File.MimeType()) {
		return true
	}
	return in.URL != "" && extract.IsPDFType(urlExtType(in.URL))
}

func isImageInput(in *Input) bool {
	if !in.File.Empty() && extract.IsImageType(in.File.MimeType()) {
		return true
	}
	return in.URL != "" && extract.IsImageType(urlExtType(in.URL))
}

// Detect returns the agent kind for an input. An explicit Kind is returned
// as is; unclassified and auto inputs are classified by shape.
func Detect(in *Input) (Kind, error) {
	if in == nil {
		return "", &ValidationError{Reason: ErrNilInput.Error(), Err: ErrNilInput}
	}
	if in.Kind != KindUnclassified && in.Kind != KindAuto {
		return in.Kind, nil
	}
	for _, d := range detectors {
		if d.match(in) {
			return d.kind, nil
		}
	}
	switch {
	case !in.File.Empty():
		return "", &AmbiguousInputError{Reason: fmt.Sprintf("unsupported file type %s", in.File.MimeType())}
	case in.URL != "" || in.Text != "":
		return "", &AmbiguousInputError{Reason: "url or text given without a type; set kind to pdf or image"}
	}
	return "", &AmbiguousInputError{Reason: "expected a pdf or image file, a query or a live data source"}
}

// Manager routes inputs to registered agents
type Manager struct {
	mu     sync.RWMutex
	agents map[Kind]Agent
	store  StoreProvider
	log    *logrus.Entry
}

// NewManager creates an empty manager. store backs Statistics and may be nil.
func NewManager(store StoreProvider) *Manager {
	return &Manager{
		agents: make(map[Kind]Agent),
		store:  store,
		log:    logging.Component("agent-manager"),
	}
}

// NewDefaultManager creates a manager with the PDF, image, search and
// live-data agents sharing deps
func NewDefaultManager(deps Deps) *Manager {
	deps = deps.withDefaults()
	m := NewManager(deps.Store)
	m.log = deps.Logger.WithField("component", "agent-manager")
	m.Register(KindPDF, NewPDFAgent(deps))
	m.Register(KindImage, NewImageAgent(deps))
	m.Register(KindSearch, NewSearchAgent(deps))
	m.Register(KindLiveData, NewLiveDataAgent(deps))
	return m
}

// Register adds or replaces the agent for kind. A nil agent is ignored.
func (m *Manager) Register(kind Kind, agent Agent) {
	if agent == nil {
		m.log.WithField("type", kind).Warn("ignoring nil agent registration")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.agents[kind]; ok && prev != agent {
		m.log.WithFields(logrus.Fields{"type": kind, "agent": agent.Name()}).Info("replacing registered agent")
	}
	m.agents[kind] = agent
}

// Agent returns the agent registered for kind
func (m *Manager) Agent(kind Kind) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[kind]
	return a, ok
}

// Agents lists registered agents ordered by type
func (m *Manager) Agents() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.agents))
	for kind, a := range m.agents {
		out = append(out, Info{Type: kind, Name: a.Name(), ID: a.ID()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Process runs the agent registered for kind
func (m *Manager) Process(ctx context.Context, kind Kind, in *Input) (*models.AgentResult, error) {
	agent, ok := m.Agent(kind)
	if !ok {
		return nil, &UnknownAgentError{Type: string(kind)}
	}
	return agent.Process(ctx, in)
}

// ProcessDocument classifies the input and runs the matching agent
func (m *Manager) ProcessDocument(ctx context.Context, in *Input) (*models.AgentResult, error) {
	kind, err := Detect(in)
	if err != nil {
		return nil, err
	}
	m.log.WithField("type", kind).Debug("input classified")
	return m.Process(ctx, kind, in)
}

// Search runs the archive search agent
func (m *Manager) Search(ctx context.Context, query string, opts Options) (*models.AgentResult, error) {
	return m.Process(ctx, KindSearch, &Input{Kind: KindSearch, Query: query, Options: opts})
}

// GetLiveData runs the live-data agent
func (m *Manager) GetLiveData(ctx context.Context, source, query string) (*models.AgentResult, error) {
	return m.Process(ctx, KindLiveData, &Input{Kind: KindLiveData, Source: source, Query: query})
}

// Dispatch maps a transport request onto Process or ProcessDocument
func (m *Manager) Dispatch(ctx context.Context, req Request) (*models.AgentResult, error) {
	kind, err := ParseKind(req.Type)
	if err != nil {
		return nil, err
	}
	in := req.Payload
	if kind == KindAuto {
		return m.ProcessDocument(ctx, &in)
	}
	in.Kind = kind
	return m.Process(ctx, kind, &in)
}

// ErrNoStore is returned by Statistics when the manager has no store provider
var ErrNoStore = errors.New("no store configured")

// Statistics summarizes stored agent results
func (m *Manager) Statistics(ctx context.Context) (*database.Statistics, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	return database.AgentStatistics(ctx, m.store.Connect(ctx))
}
