package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMemoryClaimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claimer := NewMemoryClaimer(clock)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, "reminder:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first claim wins")

	ok, _ = claimer.Claim(ctx, "reminder:a", time.Minute)
	assert.False(t, ok, "held claim blocks")

	ok, _ = claimer.Claim(ctx, "reminder:b", time.Minute)
	assert.True(t, ok, "keys are independent")

	clock.Advance(time.Minute)
	ok, _ = claimer.Claim(ctx, "reminder:a", time.Minute)
	assert.True(t, ok, "claim expires after its TTL")
}

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(key, expiration)
	return redis.NewBoolResult(args.Bool(0), args.Error(1))
}

func TestRedisClaimer(t *testing.T) {
	client := new(mockRedis)
	client.On("SetNX", "reminder:free", claimTTL).Return(true, nil)
	client.On("SetNX", "reminder:held", claimTTL).Return(false, nil)
	client.On("SetNX", "reminder:down", claimTTL).Return(false, errors.New("connection refused"))
	claimer := NewRedisClaimer(client)
	ctx := context.Background()

	ok, err := claimer.Claim(ctx, "reminder:free", claimTTL)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, "reminder:held", claimTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = claimer.Claim(ctx, "reminder:down", claimTTL)
	assert.Error(t, err)
	client.AssertExpectations(t)
}
