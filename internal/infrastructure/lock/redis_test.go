package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
)

type stubObtainer struct {
	keys []string
	ttl  time.Duration
	err  error
}

func (s *stubObtainer) Obtain(_ context.Context, key string, ttl time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	s.keys = append(s.keys, key)
	s.ttl = ttl
	return nil, s.err
}

func TestLock_HeldElsewhereIsConflict(t *testing.T) {
	stub := &stubObtainer{err: redislock.ErrNotObtained}
	unlock, err := newLocker(stub, Config{TTL: 30 * time.Second}).Lock(context.Background(), "location:20", "location:30")

	require.Error(t, err)
	assert.Nil(t, unlock)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
	assert.Equal(t, []string{"stockflow:location:20"}, stub.keys)
	assert.Equal(t, 30*time.Second, stub.ttl)
}

func TestLock_RedisFailureIsPassedThrough(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := newLocker(&stubObtainer{err: boom}, Config{}).Lock(context.Background(), "location:1")

	assert.ErrorIs(t, err, boom)
	assert.False(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestNewLocker_Defaults(t *testing.T) {
	l := newLocker(&stubObtainer{}, Config{})
	assert.Equal(t, time.Minute, l.cfg.TTL)
	assert.Equal(t, 100*time.Millisecond, l.cfg.Backoff)
}

func TestLock_NoKeys(t *testing.T) {
	stub := &stubObtainer{}
	unlock, err := newLocker(stub, Config{}).Lock(context.Background())
	require.NoError(t, err)
	unlock()
	assert.Empty(t, stub.keys)
}
