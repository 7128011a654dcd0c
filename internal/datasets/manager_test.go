package datasets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// fakeGate implements TableGate for tests with counters.
type fakeGate struct {
	acquireErr error
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireTable(ctx context.Context) error {
	g.acquires.Add(1)
	return g.acquireErr
}
func (g *fakeGate) ReleaseTable() { g.releases.Add(1) }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestAdoptGetClose(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(2*time.Second, time.Second, gate, time.Now)

	id, err := m.Adopt(context.Background(), &Table{Header: []string{"a"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, 1, m.Count())

	h, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, id, h.ID)

	require.NoError(t, m.CloseHandle(context.Background(), id))
	require.Equal(t, 0, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())
	require.ErrorIs(t, m.CloseHandle(context.Background(), id), ErrHandleNotFound)
}

func TestTTLExpiryAndEviction(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	gate := &fakeGate{}
	m := NewManager(50*time.Millisecond, 5*time.Millisecond, gate, clock)

	_, err := m.Adopt(context.Background(), &Table{})
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())

	now.Store(time.Now().Add(200 * time.Millisecond).UnixNano())
	m.EvictExpired()

	require.Equal(t, 0, m.Count())
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestGetOrOpenReusesHandle(t *testing.T) {
	p := writeFile(t, "activity.csv", "location,sector,value\nS1,56,10\n")
	gate := &fakeGate{}
	m := NewManager(time.Minute, time.Minute, gate, time.Now)

	id1, canonical, err := m.GetOrOpen(context.Background(), p, "")
	require.NoError(t, err)
	require.Equal(t, p, canonical)
	id2, _, err := m.GetOrOpen(context.Background(), p, "")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, int64(1), gate.acquires.Load())

	tbl, err := m.Load(context.Background(), p, "")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
}

func TestConcurrentReaders(t *testing.T) {
	m := NewManager(time.Second, time.Second, nil, time.Now)
	id, err := m.Adopt(context.Background(), &Table{Rows: [][]string{{"x"}}})
	require.NoError(t, err)

	var inside sync.WaitGroup
	inside.Add(2)
	release := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- m.WithRead(id, func(tb *Table) error {
				inside.Done()
				<-release
				return nil
			})
		}()
	}
	// Both readers hold the shared lock at once.
	inside.Wait()
	close(release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestGetRefreshesTTLDuringRead(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }
	m := NewManager(time.Minute, time.Minute, nil, clock)
	id, err := m.Adopt(context.Background(), &Table{})
	require.NoError(t, err)

	err = m.WithRead(id, func(*Table) error {
		now.Store(now.Load() + int64(30*time.Second))
		h, ok := m.Get(id)
		require.True(t, ok)
		require.True(t, h.ExpiresAt().Equal(clock().Add(time.Minute)))
		require.False(t, h.Expired(clock().Add(45*time.Second)))
		return nil
	})
	require.NoError(t, err)
}

func TestGetOrOpenConcurrentMissesShareHandle(t *testing.T) {
	p := writeFile(t, "edges.csv", "a,b,weight\n10,20,1\n")
	gate := &fakeGate{}
	m := NewManager(time.Minute, time.Minute, gate, time.Now)

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _, errs[i] = m.GetOrOpen(context.Background(), p, "")
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, m.Count())
	require.Equal(t, int64(1), gate.acquires.Load()-gate.releases.Load())
}

func TestOpen_UnsupportedFormatReleasesGate(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Second, time.Second, gate, time.Now)

	_, _, err := m.Open(context.Background(), "not_a_table.txt", "")
	require.ErrorIs(t, err, analysiserr.ErrUnsupportedFormat)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestOpen_GateBusy(t *testing.T) {
	gate := &fakeGate{acquireErr: context.DeadlineExceeded}
	m := NewManager(time.Second, time.Second, gate, time.Now)

	_, _, err := m.Open(context.Background(), "sheet.xlsx", "")
	require.Error(t, err)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, int64(0), gate.releases.Load())
}

type denyValidator struct{}

func (denyValidator) ValidateOpenPath(string) (string, error) { return "", fmt.Errorf("denied") }

func TestOpen_PathValidatorDenied(t *testing.T) {
	gate := &fakeGate{}
	m := NewManager(time.Second, time.Second, gate, time.Now)
	m.SetValidator(denyValidator{})

	_, _, err := m.Open(context.Background(), "ok.xlsx", "")
	require.Error(t, err)
	require.Equal(t, int64(0), gate.acquires.Load())
	require.Equal(t, int64(0), gate.releases.Load())
}

func TestOpen_RowLimit(t *testing.T) {
	p := writeFile(t, "big.csv", "a\n1\n2\n3\n")
	gate := &fakeGate{}
	m := NewManager(time.Second, time.Second, gate, time.Now)
	m.SetMaxRows(2)

	_, _, err := m.Open(context.Background(), p, "")
	require.ErrorIs(t, err, analysiserr.ErrLimitExceeded)
	require.Equal(t, int64(1), gate.releases.Load())
	require.Equal(t, 0, m.Count())
}
