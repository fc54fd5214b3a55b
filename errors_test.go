package runboard_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	runboard "github.com/goliatone/go-runboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, runboard.IsUniqueViolation(errors.New("UNIQUE constraint failed: leaderboards.slug")))
	assert.True(t, runboard.IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "leaderboards_slug_live_idx" (SQLSTATE=23505)`)))
	assert.False(t, runboard.IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, runboard.IsUniqueViolation(nil))
}

func TestAsSlugConflict(t *testing.T) {
	conflict := runboard.NewSlugConflict("mario-kart-8", &runboard.Leaderboard{Slug: "mario-kart-8"})

	// direct and wrapped forms both unwrap
	got, ok := runboard.AsSlugConflict(conflict)
	require.True(t, ok)
	assert.Equal(t, "mario-kart-8", got.Slug)

	wrapped := fmt.Errorf("create failed: %w", conflict)
	_, ok = runboard.AsSlugConflict(wrapped)
	assert.True(t, ok)

	_, ok = runboard.AsSlugConflict(errors.New("something else"))
	assert.False(t, ok)
}

func TestBusinessErrorTextCodes(t *testing.T) {
	cases := map[error]string{
		runboard.ErrAlreadyDeleted:  runboard.TextCodeAlreadyDeleted,
		runboard.ErrNotDeleted:      runboard.TextCodeNotDeleted,
		runboard.ErrTokenExpired:    runboard.TextCodeTokenExpired,
		runboard.ErrTokenUsed:       runboard.TextCodeTokenUsed,
		runboard.ErrRoleNotEligible: runboard.TextCodeRoleNotEligible,
		runboard.ErrSamePassword:    runboard.TextCodeSamePassword,
	}

	for err, code := range cases {
		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, code, richErr.TextCode)
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	hash := sharedPasswordHash(t)

	assert.NoError(t, runboard.ComparePasswordAndHash(testPassword, hash))
	assert.ErrorIs(t,
		runboard.ComparePasswordAndHash("wrong-password", hash),
		runboard.ErrMismatchedHashAndPassword,
	)
}
