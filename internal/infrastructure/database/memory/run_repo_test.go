package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/audit"
	tu "fleet-audit/internal/testutil"
)

func run(hour int) *audit.Result {
	return &audit.Result{RunID: uuid.New(), StartedAt: tu.At(hour, 0)}
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(2)

	first, second, third := run(8), run(9), run(10)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, third))

	_, err := repo.GetByID(ctx, first.RunID)
	assert.ErrorIs(t, err, audit.ErrRunNotFound, "oldest run is evicted")

	got, err := repo.GetByID(ctx, third.RunID)
	require.NoError(t, err)
	assert.Same(t, third, got)

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.RunID, recent[0].RunID)
	assert.Equal(t, second.RunID, recent[1].RunID)

	recent, err = repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
