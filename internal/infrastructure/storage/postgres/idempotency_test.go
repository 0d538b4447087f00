package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
)

func TestIdempotencyResolve(t *testing.T) {
	s := NewIdempotencyStore(nil, 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := IdempotencyRecord{
		Key:         "k1",
		Operator:    "marta",
		Operation:   "POST /api/v1/transfers",
		RequestHash: "abc",
		UpdatedAt:   now.Add(-10 * time.Second),
	}
	ctx := context.Background()

	t.Run("different request", func(t *testing.T) {
		_, err := s.resolve(ctx, "k1", "marta", "POST /api/v1/transfers", "other", stored, now)
		assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
	})

	t.Run("in flight", func(t *testing.T) {
		r := stored
		r.Status = IdempotencyStatusPending
		_, err := s.resolve(ctx, "k1", "marta", "POST /api/v1/transfers", "abc", r, now)
		require.Error(t, err)
		assert.Equal(t, "Operation already in progress or completed", err.(*apperror.AppError).Message)
	})

	t.Run("finished replays", func(t *testing.T) {
		r := stored
		r.Status = IdempotencyStatusSuccess
		r.StatusCode = 201
		r.Response = []byte(`{"containerId":1}`)
		replay, err := s.resolve(ctx, "k1", "marta", "POST /api/v1/transfers", "abc", r, now)
		require.NoError(t, err)
		assert.Equal(t, &IdempotencyReplay{StatusCode: 201, ContentType: "application/json", Body: r.Response}, replay)
	})

	t.Run("failed replays", func(t *testing.T) {
		r := stored
		r.Status = IdempotencyStatusFailed
		r.StatusCode = 502
		r.ContentType = "application/json; charset=utf-8"
		replay, err := s.resolve(ctx, "k1", "marta", "POST /api/v1/transfers", "abc", r, now)
		require.NoError(t, err)
		assert.Equal(t, 502, replay.StatusCode)
		assert.Equal(t, "application/json; charset=utf-8", replay.ContentType)
	})
}

func TestNewIdempotencyStore_DefaultTTL(t *testing.T) {
	assert.Equal(t, 24*time.Hour, NewIdempotencyStore(nil, 0).ttl)
	assert.Equal(t, time.Hour, NewIdempotencyStore(nil, time.Hour).ttl)
}
