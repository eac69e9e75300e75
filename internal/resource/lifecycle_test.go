package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsplit/internal/domain"
)

type fakeProvisioner struct {
	mu         sync.Mutex
	live       map[string]bool
	duplicates []string
	drops      []string
	failDup    map[string]error
	failDrop   map[string]error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{live: map[string]bool{}, failDup: map[string]error{}, failDrop: map[string]error{}}
}

func (f *fakeProvisioner) Duplicate(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duplicates = append(f.duplicates, name)
	if err := f.failDup[name]; err != nil {
		return err
	}
	f.live[name] = true
	return nil
}

func (f *fakeProvisioner) Drop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, name)
	if err := f.failDrop[name]; err != nil {
		return err
	}
	delete(f.live, name)
	return nil
}

func testNames(runID string, i int) string {
	if i == 0 {
		return "app_test"
	}
	return fmt.Sprintf("app_test_%s_%d", runID, i)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLifecycle_AcquirePrimaryIsNoop(t *testing.T) {
	prov := newFakeProvisioner()
	lc := NewLifecycle(prov, testNames, discardLogger())

	h, err := lc.Acquire(context.Background(), "9", 0)
	require.NoError(t, err)
	assert.True(t, h.Primary)
	assert.Equal(t, "app_test", h.Name)
	assert.Empty(t, prov.duplicates)

	require.NoError(t, lc.Release(context.Background(), h))
	assert.Empty(t, prov.drops, "the canonical resource is never dropped")
}

func TestLifecycle_AcquireDuplicates(t *testing.T) {
	prov := newFakeProvisioner()
	lc := NewLifecycle(prov, testNames, discardLogger())

	h, err := lc.Acquire(context.Background(), "9", 2)
	require.NoError(t, err)
	assert.False(t, h.Primary)
	assert.Equal(t, "app_test_9_2", h.Name)
	assert.Equal(t, 2, h.WorkerIndex)
	assert.Equal(t, "9", h.RunID)
	assert.True(t, prov.live["app_test_9_2"])
}

func TestLifecycle_ReleaseIsIdempotent(t *testing.T) {
	prov := newFakeProvisioner()
	lc := NewLifecycle(prov, testNames, discardLogger())

	h, err := lc.Acquire(context.Background(), "9", 1)
	require.NoError(t, err)

	require.NoError(t, lc.Release(context.Background(), h))
	require.NoError(t, lc.Release(context.Background(), h))

	assert.Equal(t, []string{"app_test_9_1"}, prov.drops, "second release has no side effect")
	assert.Empty(t, prov.live)
}

func TestLifecycle_ReleaseFailureCanBeRetried(t *testing.T) {
	prov := newFakeProvisioner()
	lc := NewLifecycle(prov, testNames, discardLogger())

	h, err := lc.Acquire(context.Background(), "9", 1)
	require.NoError(t, err)

	prov.failDrop["app_test_9_1"] = errors.New("server gone")
	require.Error(t, lc.Release(context.Background(), h))

	delete(prov.failDrop, "app_test_9_1")
	require.NoError(t, lc.Release(context.Background(), h))
	assert.Empty(t, prov.live)
}

func TestLifecycle_ReleaseForeignHandle(t *testing.T) {
	// Handles read back from a stale manifest were never acquired by this lifecycle.
	prov := newFakeProvisioner()
	prov.live["app_test_1_3"] = true
	h := domain.ResourceHandle{RunID: "1", WorkerIndex: 3, Name: "app_test_1_3"}

	lc := NewLifecycle(prov, testNames, discardLogger())
	require.NoError(t, lc.Release(context.Background(), h))
	assert.Empty(t, prov.live)
}

func TestLifecycle_AcquireFailureDropsPartialCopy(t *testing.T) {
	prov := newFakeProvisioner()
	prov.failDup["app_test_9_1"] = errors.New("disk full")
	lc := NewLifecycle(prov, testNames, discardLogger())

	_, err := lc.Acquire(context.Background(), "9", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"app_test_9_1"}, prov.drops)
}

func TestLifecycle_AcquireAll(t *testing.T) {
	prov := newFakeProvisioner()
	prov.failDup["app_test_9_2"] = errors.New("disk full")
	lc := NewLifecycle(prov, testNames, discardLogger())

	acquired := lc.AcquireAll(context.Background(), "9", 4, 2)
	require.Len(t, acquired, 4)

	for i, a := range acquired {
		assert.Equal(t, i, a.Handle.WorkerIndex)
		if i == 2 {
			assert.Error(t, a.Err, "only worker 2 fails")
			continue
		}
		assert.NoError(t, a.Err)
	}
	assert.True(t, acquired[0].Handle.Primary)
	assert.ElementsMatch(t, []string{"app_test_9_1", "app_test_9_2", "app_test_9_3"}, prov.duplicates)
}

func TestNoopProvisioner(t *testing.T) {
	lc := NewLifecycle(nil, testNames, discardLogger())
	h, err := lc.Acquire(context.Background(), "9", 1)
	require.NoError(t, err)
	require.NoError(t, lc.Release(context.Background(), h))
}

func TestIsValidDatabaseName(t *testing.T) {
	tests := map[string]bool{
		"app_test":        true,
		"app_test_4242_1": true,
		"":                false,
		"app-test":        false,
		"app`; DROP x":    false,
		"a/b":             false,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, isValidDatabaseName(name))
		})
	}
}

func TestMySQLProvisioner_RejectsUnsafeNames(t *testing.T) {
	p := NewMySQLProvisioner(nil, "app_test")

	err := p.Duplicate(context.Background(), "app`test")
	assert.True(t, errors.Is(err, ErrInvalidName))

	err = p.Drop(context.Background(), "app_test")
	assert.True(t, errors.Is(err, ErrInvalidName), "the source database is never dropped")
}
