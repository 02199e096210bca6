package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

var (
	// ErrSessionNotFound is returned for unknown or already removed session ids.
	ErrSessionNotFound = errors.New("stream session not found")
	// ErrSourceExhausted is returned by a SampleSource with no samples left.
	ErrSourceExhausted = errors.New("sample source exhausted")
)

// SampleSource is a sequential source of samples at a fixed rate.
type SampleSource interface {
	io.Closer
	// Next returns the next sample or ErrSourceExhausted.
	Next() (float64, error)
	// Rate is the sampling rate in Hz.
	Rate() float64
}

// SessionKind selects what a session emits.
type SessionKind string

const (
	KindSamples   SessionKind = "samples"
	KindSnapshots SessionKind = "snapshots"
)

// ParseSessionKind validates a kind name; empty selects samples.
func ParseSessionKind(s string) (SessionKind, error) {
	switch SessionKind(s) {
	case "", KindSamples:
		return KindSamples, nil
	case KindSnapshots, "plot":
		return KindSnapshots, nil
	default:
		return "", fmt.Errorf("unknown session type '%s'", s)
	}
}

// State is a session lifecycle state.
type State int

const (
	StateCreated State = iota
	StateStreaming
	StateExhausted
	StateErrored
	StateClientDisconnected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateErrored:
		return "errored"
	case StateClientDisconnected:
		return "client_disconnected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateExhausted
}

// Observer receives session lifecycle changes, typically for metrics.
type Observer interface {
	SessionOpened(kind SessionKind)
	SessionEnded(kind SessionKind, state State)
	EventEmitted(kind SessionKind)
}

// Options configures a Manager.
type Options struct {
	Clock            clock.Clock
	SampleInterval   time.Duration
	SnapshotInterval time.Duration
	// WindowSeconds is the span of signal covered by each snapshot.
	WindowSeconds float64
	Renderer      Renderer
	Observer      Observer
	// EventBuffer is the capacity of each session's event channel.
	EventBuffer int
}

// Manager owns the active sessions.
type Manager struct {
	clock            clock.Clock
	sampleInterval   time.Duration
	snapshotInterval time.Duration
	window           float64
	renderer         Renderer
	observer         Observer
	eventBuffer      int

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager; zero options take the package defaults.
func NewManager(opts Options) *Manager {
	m := &Manager{
		clock:            opts.Clock,
		sampleInterval:   opts.SampleInterval,
		snapshotInterval: opts.SnapshotInterval,
		window:           opts.WindowSeconds,
		renderer:         opts.Renderer,
		observer:         opts.Observer,
		eventBuffer:      opts.EventBuffer,
		sessions:         make(map[string]*Session),
	}
	if m.clock == nil {
		m.clock = clock.WallClock
	}
	if m.sampleInterval <= 0 {
		m.sampleInterval = constants.SampleInterval
	}
	if m.snapshotInterval <= 0 {
		m.snapshotInterval = constants.SnapshotInterval
	}
	if m.window <= 0 {
		m.window = constants.SnapshotWindowSeconds
	}
	if m.renderer == nil {
		m.renderer = PNGRenderer{}
	}
	if m.eventBuffer <= 0 {
		m.eventBuffer = 64
	}
	return m
}

// OpenSession takes ownership of source and starts producing events. The
// session ends when the source is exhausted or fails, or when it is closed.
func (m *Manager) OpenSession(kind SessionKind, source SampleSource) (*Session, error) {
	if source == nil {
		return nil, errors.New("nil sample source")
	}
	if source.Rate() <= 0 {
		source.Close()
		return nil, fmt.Errorf("sample source has invalid rate %v", source.Rate())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		kind:    kind,
		cursor:  model.NewStreamCursor(source, m.clock.Now()),
		source:  source,
		events:  make(chan model.StreamEvent, m.eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		manager: m,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.SessionOpened(kind)
	}

	s.setState(StateStreaming)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run()
	}()

	util.LogInfo("Stream session opened", util.F("session", s.id), util.F("kind", string(kind)), util.F("rate", source.Rate()))
	return s, nil
}

// Get returns an active session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close disconnects the session with id.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

// Sessions returns the number of active sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session and waits for their producers to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.wg.Wait()
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}

// Session is one streaming session with a single consumer.
type Session struct {
	id      string
	kind    SessionKind
	cursor  *model.StreamCursor
	source  SampleSource
	events  chan model.StreamEvent
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	manager *Manager

	mu    sync.Mutex
	state State
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Kind returns the session kind.
func (s *Session) Kind() SessionKind { return s.kind }

// Events is closed after the terminal event.
func (s *Session) Events() <-chan model.StreamEvent { return s.events }

// Done is closed once the producer has exited and the source is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleIndex returns how many samples have been consumed from the source.
func (s *Session) SampleIndex() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.SampleIndex
}

// Close disconnects the client. It is a no-op once the session is terminal.
func (s *Session) Close() {
	if s.transition(StateClientDisconnected) {
		util.LogInfo("Stream client disconnected", util.F("session", s.id))
	}
	s.cancel()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// transition moves to a terminal state unless one was already reached.
func (s *Session) transition(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = state
	return true
}

func (s *Session) run() {
	defer func() {
		if err := s.cursor.Release(); err != nil {
			util.LogDebug("Release sample source failed", util.F("session", s.id), util.F("error", err))
		}
		close(s.events)
		s.manager.remove(s)
		if s.manager.observer != nil {
			s.manager.observer.SessionEnded(s.kind, s.State())
		}
		close(s.done)
	}()

	var err error
	switch s.kind {
	case KindSnapshots:
		err = s.runSnapshots()
	default:
		err = s.runSamples()
	}

	switch {
	case s.ctx.Err() != nil:
		// Closed by the client.
	case errors.Is(err, ErrSourceExhausted):
		if s.emit(model.DoneEvent()) {
			s.transition(StateExhausted)
		}
	case err != nil:
		util.LogError("Stream producer failed", util.F("session", s.id), util.F("error", err))
		if s.emit(model.ErrorEvent(err)) {
			s.transition(StateErrored)
		}
	}
	s.transition(StateClientDisconnected)
}

// emit delivers ev unless the session has been cancelled.
func (s *Session) emit(ev model.StreamEvent) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		if s.manager.observer != nil {
			s.manager.observer.EventEmitted(s.kind)
		}
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) wait(d time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-s.manager.clock.After(d):
		return true
	}
}

func (s *Session) next() (float64, error) {
	v, err := s.source.Next()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.cursor.Advance(1)
	s.mu.Unlock()
	return v, nil
}

func (s *Session) runSamples() error {
	rate := s.source.Rate()
	for {
		if !s.wait(s.manager.sampleInterval) {
			return nil
		}
		index := s.SampleIndex()
		v, err := s.next()
		if err != nil {
			return err
		}
		if !s.emit(model.SampleEvent(float64(index)/rate, v)) {
			return nil
		}
	}
}

func (s *Session) runSnapshots() error {
	rate := s.source.Rate()
	windowLen := int(s.manager.window * rate)
	if windowLen < 1 {
		windowLen = 1
	}
	stepLen := int(s.manager.snapshotInterval.Seconds() * rate)
	if stepLen < 1 {
		stepLen = 1
	}
	ring := newRing(windowLen)

	for {
		if !s.wait(s.manager.snapshotInterval) {
			return nil
		}
		for i := 0; i < stepLen; i++ {
			v, err := s.next()
			if err != nil {
				return err
			}
			ring.push(v)
		}

		window := ring.ordered()
		powers := BandPowers(window, rate)
		stage := EstimateStage(powers)
		image, err := s.manager.renderer.Render(window, stage)
		if err != nil {
			return fmt.Errorf("render snapshot: %w", err)
		}
		if !s.emit(model.SnapshotEvent(image, stage, powers)) {
			return nil
		}
	}
}

// ring is a fixed-size window of the most recent samples. Unfilled slots read
// as zero, as a freshly started plot does.
type ring struct {
	buf  []float64
	next int
}

func newRing(n int) *ring {
	return &ring{buf: make([]float64, n)}
}

func (r *ring) push(v float64) {
	r.buf[r.next%len(r.buf)] = v
	r.next++
}

// ordered returns the window oldest first.
func (r *ring) ordered() []float64 {
	out := make([]float64, len(r.buf))
	start := r.next % len(r.buf)
	n := copy(out, r.buf[start:])
	copy(out[n:], r.buf[:start])
	return out
}
