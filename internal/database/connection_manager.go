package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	defaultPollAttempts   = 30
	defaultReconnectDelay = 5 * time.Second
	indexCreationTimeout  = 30 * time.Second
	eventBufferSize       = 64
)

// Observer receives connection lifecycle notifications, typically metrics
type Observer interface {
	ConnectAttempt(outcome string)
	ReconnectScheduled()
}

// Options configures a ConnectionManager
type Options struct {
	URI            string
	DatabaseName   string
	ConnectTimeout time.Duration
	PollInterval   time.Duration
	PollAttempts   int
	ReconnectDelay time.Duration

	// Indexer runs in the background after every successful connect.
	// Defaults to EnsureIndexes.
	Indexer  func(ctx context.Context, store Store) error
	Logger   *logrus.Entry
	Observer Observer
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = defaultPollAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.DatabaseName == "" {
		o.DatabaseName = extractDBName(o.URI)
	}
	if o.Indexer == nil {
		o.Indexer = EnsureIndexes
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Status is the health snapshot of the connection
type Status struct {
	Status     ConnStatus `json:"status"`
	ReadyState int        `json:"ready_state"`
	Host       string     `json:"host"`
	Name       string     `json:"name"`
	Cached     bool       `json:"cached"`
}

// attempt is one real dial shared by every caller arriving while it runs
type attempt struct {
	done  chan struct{}
	store Store
}

// ConnectionManager owns the single process-wide database handle.
//
// Connect never fails: when no connection can be made it returns the
// fallback store. Driver signals arrive as Events on a channel drained by a
// single goroutine, which clears the cache and schedules at most one pending
// reconnect at a time.
type ConnectionManager struct {
	dialer   Dialer
	opts     Options
	log      *logrus.Entry
	fallback *FallbackStore

	mu             sync.Mutex
	status         ConnStatus
	handle         Handle
	current        uint64 // generation of handle, 0 when none
	inFlight       bool
	attempt        *attempt
	reconnectTimer *time.Timer
	closed         bool

	generations atomic.Uint64
	dials       atomic.Int64
	reconnects  atomic.Int64

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnectionManager creates a manager and starts its event loop. No
// connection is attempted until the first Connect.
func NewConnectionManager(dialer Dialer, opts Options) *ConnectionManager {
	opts.applyDefaults()
	m := &ConnectionManager{
		dialer:   dialer,
		opts:     opts,
		log:      opts.Logger.WithField("component", "connection-manager"),
		fallback: NewFallbackStore(opts.DatabaseName),
		status:   StatusUninitialized,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Fallback returns the shared fallback store
func (m *ConnectionManager) Fallback() Store { return m.fallback }

// DialAttempts returns the number of real dials issued so far
func (m *ConnectionManager) DialAttempts() int64 { return m.dials.Load() }

// ReconnectsScheduled returns the number of reconnects scheduled by events
func (m *ConnectionManager) ReconnectsScheduled() int64 { return m.reconnects.Load() }

// Connect returns the cached handle, joins an attempt already in flight, or
// dials. Callers joining an attempt wait at most PollAttempts*PollInterval
// before dialing on their own.
func (m *ConnectionManager) Connect(ctx context.Context) Store {
	for polls := 0; ; polls++ {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return m.fallback
		}
		if m.status == StatusConnected && m.handle != nil {
			h := m.handle
			m.mu.Unlock()
			return h
		}
		if !m.inFlight {
			att := &attempt{done: make(chan struct{})}
			m.inFlight = true
			m.attempt = att
			m.status = StatusConnecting
			m.mu.Unlock()
			return m.dial(ctx, att)
		}
		att := m.attempt
		m.mu.Unlock()

		if polls >= m.opts.PollAttempts {
			m.log.WithField("waited", m.opts.PollInterval*time.Duration(polls)).
				Warn("Connection attempt still in flight after poll ceiling, dialing independently")
			return m.dial(ctx, nil)
		}

		var attemptDone <-chan struct{}
		if att != nil {
			attemptDone = att.done
		}
		timer := time.NewTimer(m.opts.PollInterval)
		select {
		case <-attemptDone:
			timer.Stop()
			return att.store
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return m.fallback
		}
	}
}

type dialResult struct {
	handle Handle
	err    error
}

// dial starts one real connection attempt and waits for it or for ctx.
// att is nil for an independent dial after the poll ceiling.
func (m *ConnectionManager) dial(ctx context.Context, att *attempt) Store {
	if att == nil {
		att = &attempt{done: make(chan struct{})}
	}
	// the attempt outlives ctx, joiners may still be waiting on it
	go m.runAttempt(context.WithoutCancel(ctx), att)
	select {
	case <-att.done:
		return att.store
	case <-ctx.Done():
		return m.fallback
	}
}

// runAttempt dials raced against ConnectTimeout and publishes the outcome
// on att.
func (m *ConnectionManager) runAttempt(ctx context.Context, att *attempt) {
	gen := m.generations.Add(1)
	sink := func(ev Event) {
		ev.Generation = gen
		m.Notify(ev)
	}

	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	m.dials.Add(1)
	resultCh := make(chan dialResult, 1)
	go func() {
		h, err := m.dialer.Dial(dctx, m.opts.URI, sink)
		resultCh <- dialResult{handle: h, err: err}
	}()

	var res dialResult
	select {
	case res = <-resultCh:
	case <-dctx.Done():
		res.err = fmt.Errorf("connect timed out after %s: %w", m.opts.ConnectTimeout, dctx.Err())
		// A dial that finishes after losing the race must not leak its client
		go func() {
			if late := <-resultCh; late.handle != nil {
				closeQuietly(late.handle)
			}
		}()
	}

	m.mu.Lock()
	if m.attempt == att {
		m.attempt = nil
		m.inFlight = false
	}

	var store Store
	switch {
	case m.closed:
		if res.handle != nil {
			go closeQuietly(res.handle)
		}
		store = m.fallback
	case res.err != nil:
		if m.status == StatusConnected && m.handle != nil {
			// another dial succeeded while this one failed
			store = m.handle
			break
		}
		m.handle = nil
		m.current = 0
		m.status = StatusDisconnected
		store = m.fallback
		m.observe(func(o Observer) { o.ConnectAttempt("failure") })
		m.log.WithError(&ConnectionError{Host: redactHost(m.opts.URI), Err: res.err}).
			Warn("Database unavailable, using fallback store")
	case m.status == StatusConnected && m.handle != nil:
		go closeQuietly(res.handle)
		store = m.handle
	default:
		m.handle = res.handle
		m.current = gen
		m.status = StatusConnected
		store = res.handle
		m.observe(func(o Observer) { o.ConnectAttempt("success") })
		m.log.WithFields(logrus.Fields{"host": res.handle.Host(), "database": res.handle.Name()}).
			Info("Connected to database")
		go m.createIndexes(res.handle)
	}

	att.store = store
	close(att.done)
	m.mu.Unlock()
}

func (m *ConnectionManager) createIndexes(store Store) {
	ctx, cancel := context.WithTimeout(context.Background(), indexCreationTimeout)
	defer cancel()
	if err := m.opts.Indexer(ctx, store); err != nil {
		m.log.WithError(err).Warn("Index creation failed")
		return
	}
	m.log.Debug("Indexes ensured")
}

// Notify posts a driver signal to the event loop. It never blocks; when the
// buffer is full the event is dropped, which is safe because a full buffer
// already holds a signal that clears the cache.
func (m *ConnectionManager) Notify(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	default:
		m.log.WithField("event", ev.Type.String()).Warn("Connection event buffer full, dropping event")
	}
}

func (m *ConnectionManager) run() {
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		case <-m.done:
			return
		}
	}
}

func (m *ConnectionManager) apply(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if ev.Generation != 0 && ev.Generation != m.current {
		return
	}

	switch ev.Type {
	case EventError, EventDisconnected:
		fields := logrus.Fields{"event": ev.Type.String()}
		if ev.Err != nil {
			fields["error"] = ev.Err.Error()
		}
		if old := m.handle; old != nil {
			m.log.WithFields(fields).Warn("Database connection lost, clearing cached handle")
			go closeQuietly(old)
		}
		m.handle = nil
		m.current = 0
		m.status = StatusDisconnected
		m.scheduleReconnectLocked()
	case EventConnected:
		if m.attempt == nil {
			m.inFlight = false
		}
	}
}

func (m *ConnectionManager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}
	m.reconnects.Add(1)
	m.observe(func(o Observer) { o.ReconnectScheduled() })
	m.log.WithField("delay", m.opts.ReconnectDelay).Info("Reconnect scheduled")
	m.reconnectTimer = time.AfterFunc(m.opts.ReconnectDelay, m.reconnect)
}

func (m *ConnectionManager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	if store := m.Connect(context.Background()); store.IsFallback() {
		m.log.Warn("Reconnect failed, fallback store remains active")
	}
}

// Status reports the connection state without performing any I/O
func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	host := redactHost(m.opts.URI)
	if m.handle != nil {
		host = m.handle.Host()
	}
	return Status{
		Status:     m.status,
		ReadyState: m.status.ReadyState(),
		Host:       host,
		Name:       m.opts.DatabaseName,
		Cached:     m.handle != nil,
	}
}

// Close stops reconnect scheduling, closes the handle if one is open and
// clears the cache. Later Connect calls return the fallback store.
func (m *ConnectionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	h, previous := m.handle, m.status
	m.handle = nil
	m.current = 0
	m.status = StatusDisconnecting
	m.mu.Unlock()

	var err error
	if h != nil && previous != StatusDisconnected {
		m.log.Info("Closing database connection")
		err = h.Close(ctx)
	}

	m.mu.Lock()
	m.status = StatusDisconnected
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.done) })
	return err
}

func (m *ConnectionManager) observe(fn func(Observer)) {
	if m.opts.Observer != nil {
		fn(m.opts.Observer)
	}
}

func closeQuietly(h Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.Close(ctx)
}

// redactHost returns the host portion of a connection URI without credentials
func redactHost(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		if i := strings.LastIndex(uri, "@"); i >= 0 {
			uri = uri[i+1:]
		}
		if i := strings.IndexAny(uri, "/?"); i >= 0 {
			uri = uri[:i]
		}
		return uri
	}
	return u.Host
}
