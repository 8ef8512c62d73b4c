package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshp123/gobed/internal/blob"
	"github.com/joshp123/gobed/internal/statefile"
)

const (
	// DefaultMargin is how far ahead of the advertised expiry a session is
	// treated as stale, so in-flight requests rarely race an expired token.
	DefaultMargin = 10 * time.Minute

	// DefaultRevalidateInterval is the period of the proactive validity
	// check.
	DefaultRevalidateInterval = 10 * time.Minute

	stateName = "session"
)

// Session is the vendor credential bundle. It is replaced wholesale on
// expiry, never partially mutated.
type Session struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expirationDate"`
}

func (s Session) wellFormed() bool {
	return s.UserID != "" && s.Token != "" && !s.ExpiresAt.IsZero()
}

// Usable reports whether the session can back new requests at the given
// instant, applying the expiry safety margin.
func (s Session) Usable(now time.Time, margin time.Duration) bool {
	return s.wellFormed() && s.ExpiresAt.After(now.Add(margin))
}

// LoginFunc performs a credential login against the vendor API.
type LoginFunc func(ctx context.Context) (Session, error)

// Manager owns the session lifecycle: disk-cache reuse, expiry validation,
// login, persistence, and periodic reauthentication.
type Manager struct {
	login  LoginFunc
	files  *statefile.Store
	blobs  blob.Store // optional mirror
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current Session
	held    bool

	// loginMu serializes the slow path so concurrent Obtain calls share one
	// login instead of issuing redundant ones.
	loginMu sync.Mutex
}

func NewManager(login LoginFunc, files *statefile.Store, blobs blob.Store) *Manager {
	if login == nil {
		panic("session: login func is required")
	}
	if files == nil {
		panic("session: state store is required")
	}
	return &Manager{
		login:  login,
		files:  files,
		blobs:  blobs,
		margin: DefaultMargin,
		now:    time.Now,
	}
}

// Obtain returns a usable session: the held one if still inside the safety
// margin, a cached one from disk or the blob mirror, or a fresh login.
// Login failures propagate; cache failures are treated as misses.
func (m *Manager) Obtain(ctx context.Context) (Session, error) {
	if s, ok := m.heldUsable(); ok {
		return s, nil
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	// Another caller may have finished the login while we waited.
	if s, ok := m.heldUsable(); ok {
		return s, nil
	}

	if s, ok := m.loadCached(ctx); ok {
		cacheHit.Inc()
		m.adopt(s)
		return s, nil
	}

	// Whatever was on disk is stale or unreadable.
	if err := m.files.Erase(stateName); err != nil {
		slog.Warn("erase stale session cache", "error", err)
	}

	s, err := m.login(ctx)
	if err != nil {
		loginFailure.Inc()
		sessionValid.Set(0)
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if !s.wellFormed() {
		loginFailure.Inc()
		sessionValid.Set(0)
		return Session{}, fmt.Errorf("login returned malformed session")
	}
	loginSuccess.Inc()

	m.persist(ctx, s)
	m.adopt(s)
	return s, nil
}

// Start runs the periodic revalidation loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRevalidateInterval)
}

func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Obtain(ctx); err != nil {
					slog.Warn("session revalidation failed", "error", err)
				}
			}
		}
	}()
}

// Invalidate drops the held session and erases the cache, forcing the next
// Obtain to log in again. Used when the API rejects the token early.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.current = Session{}
	m.held = false
	m.mu.Unlock()
	sessionValid.Set(0)
	if err := m.files.Erase(stateName); err != nil {
		slog.Warn("erase session cache", "error", err)
	}
}

func (m *Manager) heldUsable() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held && m.current.Usable(m.now(), m.margin) {
		return m.current, true
	}
	return Session{}, false
}

func (m *Manager) adopt(s Session) {
	m.mu.Lock()
	m.current = s
	m.held = true
	m.mu.Unlock()
	sessionValid.Set(1)
}

func (m *Manager) loadCached(ctx context.Context) (Session, bool) {
	var s Session
	err := m.files.Load(stateName, &s)
	if err == nil && s.Usable(m.now(), m.margin) {
		return s, true
	}
	if err != nil && !errors.Is(err, statefile.ErrNotFound) {
		slog.Warn("session cache unreadable, treating as miss", "error", err)
	}

	if m.blobs == nil {
		return Session{}, false
	}
	data, err := m.blobs.Load(ctx, stateName)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			slog.Warn("session blob unreadable, treating as miss", "error", err)
		}
		return Session{}, false
	}
	if err := statefile.Decode(data, &s); err != nil || !s.Usable(m.now(), m.margin) {
		return Session{}, false
	}
	if err := m.files.Write(stateName, s); err != nil {
		slog.Warn("persist session from blob", "error", err)
	}
	return s, true
}

func (m *Manager) persist(ctx context.Context, s Session) {
	if err := m.files.Write(stateName, s); err != nil {
		slog.Warn("persist session", "error", err)
	}
	if m.blobs == nil {
		return
	}
	data, err := statefile.Encode(s)
	if err != nil {
		blobPersistOK.Set(0)
		return
	}
	if err := m.blobs.Save(ctx, stateName, data); err != nil {
		blobPersistOK.Set(0)
		slog.Warn("mirror session to blob store", "error", err)
		return
	}
	blobPersistOK.Set(1)
}
