package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/errors"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

func newTestResolver(backend Backend, maxAttempts int) (*Resolver, *int) {
	r := NewResolver(backend, NewNormalizer(zap.NewNop()), &config.VRFConfig{
		PollInterval: time.Second,
		MaxAttempts:  maxAttempts,
	}, zap.NewNop())

	sleeps := 0
	r.sleep = func(time.Duration) { sleeps++ }
	return r, &sleeps
}

func TestResolverImmediateFulfillment(t *testing.T) {
	raw := testRawGame(1)
	raw.Status = rawStatusInProgress
	raw.VRFFulfilled = true
	raw.RandomNumber = big.NewInt(777)

	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			return raw, nil
		},
	}
	r, sleeps := newTestResolver(backend, 20)

	game, pending := r.Await(context.Background(), 1)
	require.NotNil(t, game)
	assert.False(t, pending)
	assert.Equal(t, models.StatusInProgress, game.Status)

	// 首次检查即命中，无需等待
	assert.Equal(t, 0, *sleeps)
}

func TestResolverFulfillmentMidPoll(t *testing.T) {
	calls := 0
	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			calls++
			raw := testRawGame(2)
			raw.Status = rawStatusWaitingVRF
			if calls >= 4 {
				raw.Status = rawStatusInProgress
				raw.VRFFulfilled = true
				raw.RandomNumber = big.NewInt(42)
			}
			return raw, nil
		},
	}
	r, sleeps := newTestResolver(backend, 20)

	game, pending := r.Await(context.Background(), 2)
	assert.False(t, pending)
	assert.Equal(t, "42", game.RandomNumber)
	assert.Equal(t, 3, *sleeps)
}

func TestResolverTimeout(t *testing.T) {
	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			raw := testRawGame(3)
			raw.Status = rawStatusWaitingVRF
			return raw, nil
		},
	}
	r, sleeps := newTestResolver(backend, 5)

	// 超时不是错误：返回最后一次快照与等待中标记
	game, pending := r.Await(context.Background(), 3)
	require.NotNil(t, game)
	assert.True(t, pending)
	assert.Equal(t, models.StatusWaitingVRF, game.Status)
	assert.Equal(t, 4, *sleeps)
}

func TestResolverToleratesReadErrors(t *testing.T) {
	calls := 0
	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			calls++
			if calls < 3 {
				return nil, errors.New(errors.ErrRPCUnavailable)
			}
			raw := testRawGame(4)
			raw.Status = rawStatusInProgress
			raw.VRFFulfilled = true
			raw.RandomNumber = big.NewInt(9)
			return raw, nil
		},
	}
	r, _ := newTestResolver(backend, 20)

	// 读取失败不终止轮询
	game, pending := r.Await(context.Background(), 4)
	assert.False(t, pending)
	assert.Equal(t, models.StatusInProgress, game.Status)
}

func TestResolverAllReadsFail(t *testing.T) {
	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			return nil, errors.New(errors.ErrRPCUnavailable)
		},
	}
	r, _ := newTestResolver(backend, 3)

	// 从未成功读取：退化为保留ID的最小记录
	game, pending := r.Await(context.Background(), 99)
	require.NotNil(t, game)
	assert.True(t, pending)
	assert.Equal(t, uint64(99), game.ID)
}

func TestResolverCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &stubBackend{
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			t.Fatal("取消后不应继续读取")
			return nil, nil
		},
	}
	r, _ := newTestResolver(backend, 20)

	_, pending := r.AwaitAttempts(ctx, 5, 20)
	assert.True(t, pending)
}
