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

func TestMemorySessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := NewMemorySessions()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, &domain.Session{Token: "t1", Identity: "g1", Role: domain.RoleGuardian}, time.Hour))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.Identity)
	assert.Equal(t, domain.RoleGuardian, got.Role)

	now = now.Add(2 * time.Hour)
	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, s.Save(ctx, &domain.Session{Token: "t2"}, time.Hour))
	require.NoError(t, s.Delete(ctx, "t2"))
	require.NoError(t, s.Delete(ctx, "unknown"))
	_, err = s.Get(ctx, "t2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
