package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

func newRiders(riders ...*domain.Rider) (*Collection[*domain.Rider], *MemoryDocuments[*domain.Rider]) {
	docs := NewMemoryDocuments(riders...)
	return NewCollection[*domain.Rider](repository.CollectionRiders, docs, NewLocalNotifier(), nil), docs
}

func next(t *testing.T, ch <-chan repository.Snapshot[*domain.Rider]) repository.Snapshot[*domain.Rider] {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return repository.Snapshot[*domain.Rider]{}
}

func TestMemoryDocuments_CopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &domain.Rider{ID: "r1", Name: "A", GuardianIDs: []string{"g1"}}
	docs := NewMemoryDocuments(r)

	r.Name = "mutated after insert"
	got, err := docs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	got.GuardianIDs[0] = "mutated after read"
	again, _ := docs.GetByID(ctx, "r1")
	assert.Equal(t, "g1", again.GuardianIDs[0])

	_, err = docs.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryDocuments_InsertionOrderAndReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := NewMemoryDocuments(&domain.Rider{ID: "b"}, &domain.Rider{ID: "a"})
	require.NoError(t, docs.Update(ctx, &domain.Rider{ID: "c"}))
	require.NoError(t, docs.Update(ctx, &domain.Rider{ID: "b", Name: "replaced"}))

	all, err := docs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "replaced", all[0].Name)
	assert.Equal(t, "c", all[2].ID)
}

func TestMemoryDocuments_InjectedFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := NewMemoryDocuments(&domain.Rider{ID: "r1"})
	docs.FailWrites(repository.ErrUnavailable)
	assert.ErrorIs(t, docs.Update(ctx, &domain.Rider{ID: "r1", Name: "x"}), repository.ErrUnavailable)

	docs.FailReads(repository.ErrUnavailable)
	_, err := docs.GetAll(ctx)
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	docs.FailReads(nil)
	docs.FailWrites(nil)
	got, err := docs.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got.Name)
}

func TestCollection_SubscribeInitialSnapshotAndChanges(t *testing.T) {
	t.Parallel()

	c, _ := newRiders(&domain.Rider{ID: "r1", Attending: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)

	first := next(t, ch)
	require.NoError(t, first.Err)
	require.Len(t, first.Items, 1)
	assert.True(t, first.Items[0].Attending)

	require.NoError(t, c.Update(ctx, &domain.Rider{ID: "r1", Attending: false}))

	second := next(t, ch)
	require.Len(t, second.Items, 1)
	assert.False(t, second.Items[0].Attending)
}

func TestCollection_IndependentSubscribers(t *testing.T) {
	t.Parallel()

	c, _ := newRiders()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := c.Subscribe(ctx)
	require.NoError(t, err)
	b, err := c.Subscribe(ctx)
	require.NoError(t, err)

	assert.Empty(t, next(t, a).Items)
	assert.Empty(t, next(t, b).Items)

	require.NoError(t, c.Update(ctx, &domain.Rider{ID: "r1"}))
	assert.Len(t, next(t, a).Items, 1)
	assert.Len(t, next(t, b).Items, 1)
}

func TestCollection_LoadErrorIsDelivered(t *testing.T) {
	t.Parallel()

	c, docs := newRiders(&domain.Rider{ID: "r1"})
	docs.FailReads(repository.ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)

	snap := next(t, ch)
	assert.ErrorIs(t, snap.Err, repository.ErrUnavailable)
	assert.Empty(t, snap.Items)
}

func TestCollection_FailedWriteDoesNotNotify(t *testing.T) {
	t.Parallel()

	c, docs := newRiders(&domain.Rider{ID: "r1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)
	next(t, ch)

	docs.FailWrites(repository.ErrUnavailable)
	assert.ErrorIs(t, c.Update(ctx, &domain.Rider{ID: "r1", Name: "x"}), repository.ErrUnavailable)

	select {
	case <-ch:
		t.Fatal("unexpected snapshot after failed write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCollection_CancelClosesStream(t *testing.T) {
	t.Parallel()

	c, _ := newRiders()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)
	next(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}
