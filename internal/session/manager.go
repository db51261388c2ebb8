package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pixora/internal/catalog"
	"pixora/internal/job"
)

// Session is one user's editing context.
type Session struct {
	ID        string
	Account   string
	CreatedAt time.Time
	Editor    *job.Orchestrator
}

// Manager is an in-memory registry of sessions, each with its own orchestrator.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	catalog  *catalog.Catalog
	poller   job.Poller
	opts     Options
	store    Store
	baseCtx  context.Context
}

// NewManager creates a manager. Sessions persist under opts.DataDir when set.
func NewManager(cat *catalog.Catalog, p job.Poller, opts Options) *Manager {
	var store Store = memoryStore{}
	if opts.DataDir != "" {
		store = NewFileStore(opts.DataDir)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		catalog:  cat,
		poller:   p,
		opts:     opts,
		store:    store,
		baseCtx:  context.Background(),
	}
}

func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }

// SetBaseContext sets the context poll loops of all sessions run under.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	for _, s := range m.sessions {
		s.Editor.SetBaseContext(ctx)
	}
	m.mu.Unlock()
}

// Create opens a new session for account.
func (m *Manager) Create(account string) *Session {
	account = strings.TrimSpace(account)
	if account == "" {
		account = defaultAccount
	}
	s := m.newSession(uuid.NewString(), account, time.Now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.persist(s, s.Editor.Snapshot())
	log.Info().Str("session_id", s.ID).Str("account", account).Msg("session created")
	return s
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	return s, ok
}

// Lookup is Get returning ErrSessionNotFound.
func (m *Manager) Lookup(id string) (*Session, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// WaitAll blocks until every session's poll loops finish or ctx is done.
// Returns true if all finished.
func (m *Manager) WaitAll(ctx context.Context) bool {
	m.mu.RLock()
	editors := make([]*job.Orchestrator, 0, len(m.sessions))
	for _, s := range m.sessions {
		editors = append(editors, s.Editor)
	}
	m.mu.RUnlock()
	for _, e := range editors {
		if !e.Wait(ctx) {
			return false
		}
	}
	return true
}

// LoadFromDisk restores saved sessions. Jobs that were still running when the
// process stopped come back failed.
func (m *Manager) LoadFromDisk() error {
	states, err := m.store.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	for _, st := range states {
		s := m.newSession(st.ID, st.Account, st.CreatedAt)
		s.Editor.Restore(st.Editor)
		m.mu.Lock()
		m.sessions[s.ID] = s
		m.mu.Unlock()
		m.persist(s, s.Editor.Snapshot())
	}
	if len(states) > 0 {
		log.Info().Int("sessions", len(states)).Msg("sessions restored")
	}
	return nil
}

func (m *Manager) newSession(id, account string, createdAt time.Time) *Session {
	s := &Session{ID: id, Account: account, CreatedAt: createdAt}
	s.Editor = job.New(m.catalog, m.poller, job.Options{
		SessionID:   id,
		Account:     account,
		Gate:        m.opts.Gate,
		Publisher:   m.opts.Publisher,
		Metrics:     m.opts.Metrics,
		HistorySize: m.opts.HistorySize,
		OnChange:    func(snap job.Snapshot) { m.persist(s, snap) },
	})
	m.mu.RLock()
	s.Editor.SetBaseContext(m.baseCtx)
	m.mu.RUnlock()
	return s
}

// persist writes session state; failures are logged, the session keeps running.
func (m *Manager) persist(s *Session, snap job.Snapshot) {
	st := State{ID: s.ID, Account: s.Account, CreatedAt: s.CreatedAt, Editor: snap}
	if err := m.store.Save(context.Background(), st); err != nil {
		log.Warn().Str("session_id", s.ID).Err(err).Msg("persist session failed")
	}
}
