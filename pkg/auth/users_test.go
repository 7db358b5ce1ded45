package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/arena/pkg/apperrors"
	"github.com/platinummonkey/arena/pkg/storage/testdb"
)

func TestUserStore_GetUserByEmail(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(testdb.New(t))

	jane := &User{Username: "jane", Email: "  Jane@X.com ", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, jane))
	assert.Equal(t, "jane@x.com", jane.Email)

	got, err := store.GetUserByEmail(ctx, "JANE@x.com")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, got.ID)
	assert.Equal(t, "jane", got.Username)

	byID, err := store.GetUser(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", byID.Email)

	_, err = store.GetUserByEmail(ctx, "nobody@x.com")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = store.GetUserByEmail(ctx, "   ")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = store.GetUser(ctx, 999)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
