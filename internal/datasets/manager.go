package datasets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vinodismyname/sectorspace/config"
)

// Handle is a cached table paired with metadata for TTL eviction.
// The expiry lives outside mu so TTL refreshes never wait on readers.
type Handle struct {
	ID       string
	Key      string
	Table    *Table
	LoadedAt time.Time
	expires  atomic.Int64 // unix nanos
	mu       sync.RWMutex
}

// ExpiresAt returns the current idle deadline.
func (h *Handle) ExpiresAt() time.Time { return time.Unix(0, h.expires.Load()) }

func (h *Handle) touch(deadline time.Time) { h.expires.Store(deadline.UnixNano()) }

// TableGate coordinates capacity for cached tables (backed by runtime.Controller).
type TableGate interface {
	AcquireTable(ctx context.Context) error
	ReleaseTable()
}

// PathValidator abstracts filesystem path validation. Implementations return
// a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Manager caches loaded tables by canonical path and sheet so repeated tool
// calls over the same inputs skip re-reading them.
type Manager struct {
	mu           sync.RWMutex
	handles      map[string]*Handle
	byKey        map[string]string
	ttl          time.Duration
	cleanupEvery time.Duration
	maxRows      int
	clock        func() time.Time
	gate         TableGate
	validator    PathValidator
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
}

// NewManager constructs a table cache. Pass ttl or cleanupEvery <= 0 to use
// defaults from config. Gate can be nil for tests; clock defaults to time.Now.
func NewManager(ttl, cleanupEvery time.Duration, gate TableGate, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultTableIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultTableCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		handles:      make(map[string]*Handle),
		byKey:        make(map[string]string),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		maxRows:      config.DefaultMaxRowsPerTable,
		clock:        clock,
		gate:         gate,
		stopCh:       make(chan struct{}),
	}
}

// SetValidator installs the path allow-list used by Open.
func (m *Manager) SetValidator(v PathValidator) { m.validator = v }

// SetMaxRows bounds the data rows of every table opened afterwards.
func (m *Manager) SetMaxRows(n int) { m.maxRows = n }

// Start launches periodic eviction of expired handles.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops all cached tables.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.handles {
		delete(m.handles, id)
		m.release()
	}
	m.byKey = make(map[string]string)
	return nil
}

// ErrHandleNotFound indicates an unknown or expired handle ID.
var ErrHandleNotFound = errors.New("datasets: handle not found")

func cacheKey(path, sheet string) string { return path + "\x00" + sheet }

// Open validates and reads a table, registers a TTL-bearing handle and returns
// its ID together with the canonical path.
func (m *Manager) Open(ctx context.Context, path, sheet string) (string, string, error) {
	canonical := path
	if m.validator != nil {
		c, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			return "", "", err
		}
		canonical = c
	}
	if err := m.acquire(ctx); err != nil {
		return "", "", err
	}
	t, err := ReadTable(canonical, sheet, m.maxRows)
	if err != nil {
		m.release()
		return "", "", err
	}
	id, fresh := m.register(cacheKey(canonical, t.Sheet), t, true)
	if !fresh {
		// A concurrent open of the same table won; keep one slot.
		m.release()
	}
	if sheet != t.Sheet {
		// Also answer the "first sheet" spelling of this table.
		m.mu.Lock()
		m.byKey[cacheKey(canonical, sheet)] = id
		m.mu.Unlock()
	}
	return id, canonical, nil
}

// GetOrOpen returns the cached handle for (path, sheet) or opens it.
func (m *Manager) GetOrOpen(ctx context.Context, path, sheet string) (string, string, error) {
	canonical := path
	if m.validator != nil {
		c, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			return "", "", err
		}
		canonical = c
	}
	m.mu.RLock()
	id, ok := m.byKey[cacheKey(canonical, sheet)]
	m.mu.RUnlock()
	if ok {
		if _, live := m.Get(id); live {
			return id, canonical, nil
		}
	}
	return m.Open(ctx, canonical, sheet)
}

// Adopt registers an in-memory table as a managed handle.
func (m *Manager) Adopt(ctx context.Context, t *Table) (string, error) {
	if t == nil {
		return "", fmt.Errorf("datasets: nil table")
	}
	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	id, _ := m.register(cacheKey(t.Path, t.Sheet), t, false)
	return id, nil
}

// register stores t under a new handle. With reuse set, a live handle already
// registered for key wins and is returned with fresh=false.
func (m *Manager) register(key string, t *Table, reuse bool) (id string, fresh bool) {
	now := m.clock()
	keyed := key != cacheKey("", "")

	m.mu.Lock()
	defer m.mu.Unlock()
	if reuse && keyed {
		if id, ok := m.byKey[key]; ok {
			if h, live := m.handles[id]; live {
				h.touch(now.Add(m.ttl))
				return id, false
			}
		}
	}
	h := &Handle{
		ID:       uuid.NewString(),
		Key:      key,
		Table:    t,
		LoadedAt: now,
	}
	h.touch(now.Add(m.ttl))
	m.handles[h.ID] = h
	if keyed {
		m.byKey[key] = h.ID
	}
	return h.ID, true
}

// Get returns the handle when present and refreshes its TTL.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	// Idle timeout semantics
	h.touch(m.clock().Add(m.ttl))
	return h, true
}

// WithRead runs fn against the cached table under a shared lock.
func (m *Manager) WithRead(id string, fn func(*Table) error) error {
	h, ok := m.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.Table)
}

// Load is GetOrOpen followed by WithRead.
func (m *Manager) Load(ctx context.Context, path, sheet string) (*Table, error) {
	id, _, err := m.GetOrOpen(ctx, path, sheet)
	if err != nil {
		return nil, err
	}
	var out *Table
	err = m.WithRead(id, func(t *Table) error {
		out = t
		return nil
	})
	return out, err
}

// CloseHandle removes a handle by ID, releasing capacity via the gate.
func (m *Manager) CloseHandle(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		m.drop(id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	// Wait for readers still inside the table.
	h.mu.Lock()
	h.Table = nil
	h.mu.Unlock()
	m.release()
	return nil
}

// drop removes a handle and its cache keys; m.mu must be held.
func (m *Manager) drop(id string) {
	delete(m.handles, id)
	for k, v := range m.byKey {
		if v == id {
			delete(m.byKey, k)
		}
	}
}

// EvictExpired scans for expired handles and drops them.
func (m *Manager) EvictExpired() {
	now := m.clock()
	var expiredIDs []string

	m.mu.RLock()
	for id, h := range m.handles {
		if h.Expired(now) {
			expiredIDs = append(expiredIDs, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expiredIDs {
		m.mu.Lock()
		_, ok := m.handles[id]
		if ok {
			m.drop(id)
		}
		m.mu.Unlock()
		if ok {
			m.release()
		}
	}
}

// Count returns the current number of cached handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireTable(ctx)
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseTable()
}

// Expired reports whether the handle has reached its TTL.
func (h *Handle) Expired(now time.Time) bool {
	return now.UnixNano() > h.expires.Load()
}
