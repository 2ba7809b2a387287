package chain

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/errors"
	"go.uber.org/zap"
)

func newTestDiscovery(backend Backend) *Discovery {
	return NewDiscovery(backend, NewNormalizer(zap.NewNop()), &config.DiscoveryConfig{
		BatchSize:           10,
		MaxScanID:           100,
		EmptyProbeThreshold: 30,
	}, zap.NewNop())
}

// gamesByID 按ID表返回原始记录，不在表中的ID视为不存在
func gamesByID(table map[uint64]*RawGame) func(ctx context.Context, gameID uint64) (*RawGame, error) {
	return func(ctx context.Context, gameID uint64) (*RawGame, error) {
		if raw, ok := table[gameID]; ok {
			return raw, nil
		}
		return &RawGame{ID: big.NewInt(0)}, nil
	}
}

func TestDiscoveryIndexedPath(t *testing.T) {
	backend := &stubBackend{
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return []uint64{3, 1, 3}, nil
		},
		getGame: gamesByID(map[uint64]*RawGame{
			1: testRawGame(1),
			3: testRawGame(3),
		}),
	}
	d := newTestDiscovery(backend)

	games := d.ListActiveGames(context.Background())
	require.Len(t, games, 2)

	// 去重且按ID升序
	assert.Equal(t, uint64(1), games[0].ID)
	assert.Equal(t, uint64(3), games[1].ID)
}

func TestDiscoveryLogScanFallback(t *testing.T) {
	backend := &stubBackend{
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return nil, errors.New(errors.ErrRPCUnavailable)
		},
		blockNumber: func(ctx context.Context) (uint64, error) {
			return 200000, nil
		},
		filterGameCreated: func(ctx context.Context, fromBlock, toBlock uint64) ([]GameCreatedEvent, error) {
			// 扫描窗口有界
			assert.Equal(t, uint64(150000), fromBlock)
			assert.Equal(t, uint64(200000), toBlock)
			return []GameCreatedEvent{
				{GameID: 7}, {GameID: 3}, {GameID: 7}, {GameID: 9},
			}, nil
		},
		getGame: gamesByID(map[uint64]*RawGame{
			3: testRawGame(3),
			7: testRawGame(7),
			9: testRawGame(9),
		}),
	}
	d := newTestDiscovery(backend)

	games := d.ListActiveGames(context.Background())
	require.Len(t, games, 3)
	assert.Equal(t, uint64(3), games[0].ID)
	assert.Equal(t, uint64(9), games[2].ID)
}

func TestDiscoveryBruteForceEarlyExit(t *testing.T) {
	var probed int64
	backend := &stubBackend{
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return nil, errors.New(errors.ErrRPCUnavailable)
		},
		blockNumber: func(ctx context.Context) (uint64, error) {
			return 0, errors.New(errors.ErrRPCUnavailable)
		},
		getGame: func(ctx context.Context, gameID uint64) (*RawGame, error) {
			atomic.AddInt64(&probed, 1)
			return &RawGame{ID: big.NewInt(0)}, nil
		},
	}
	d := newTestDiscovery(backend)

	games := d.ListActiveGames(context.Background())
	assert.Empty(t, games)

	// 零命中时达到空探测阈值即提前退出，不会扫到硬上限
	assert.EqualValues(t, 30, atomic.LoadInt64(&probed))
}

func TestDiscoveryBruteForceFindsGames(t *testing.T) {
	backend := &stubBackend{
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return nil, errors.New(errors.ErrRPCUnavailable)
		},
		blockNumber: func(ctx context.Context) (uint64, error) {
			return 0, errors.New(errors.ErrRPCUnavailable)
		},
		getGame: gamesByID(map[uint64]*RawGame{
			5:  testRawGame(5),
			42: testRawGame(42),
		}),
	}
	d := newTestDiscovery(backend)

	games := d.ListActiveGames(context.Background())
	require.Len(t, games, 2)
	assert.Equal(t, uint64(5), games[0].ID)
	assert.Equal(t, uint64(42), games[1].ID)
}

func TestDiscoveryOwnerFilter(t *testing.T) {
	creator := "0x1111111111111111111111111111111111111111"
	other := testRawGame(2)
	other.Creator = common.HexToAddress("0x9999999999999999999999999999999999999999")

	backend := &stubBackend{
		getPlayerGames: func(ctx context.Context, addr common.Address) ([]uint64, error) {
			return nil, errors.New(errors.ErrRPCUnavailable)
		},
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return []uint64{1, 2, 3}, nil
		},
		getGame: gamesByID(map[uint64]*RawGame{
			1: testRawGame(1),
			2: other,
			3: testRawGame(3),
		}),
		getGamePlayers: func(ctx context.Context, gameID uint64) ([]common.Address, error) {
			if gameID == 2 {
				// 地址大小写不同也应命中
				return []common.Address{common.HexToAddress(creator)}, nil
			}
			return nil, nil
		},
	}
	d := newTestDiscovery(backend)

	// 创建者大写形式查询：比较不区分大小写
	games := d.ListGamesForOwner(context.Background(), "0X1111111111111111111111111111111111111111")
	require.Len(t, games, 3)
}

func TestDiscoveryTerminalFiltered(t *testing.T) {
	done := testRawGame(4)
	done.Status = rawStatusCompleted
	done.VRFFulfilled = true
	done.RandomNumber = big.NewInt(1)

	backend := &stubBackend{
		getActiveGames: func(ctx context.Context) ([]uint64, error) {
			return []uint64{1, 4}, nil
		},
		getGame: gamesByID(map[uint64]*RawGame{
			1: testRawGame(1),
			4: done,
		}),
	}
	d := newTestDiscovery(backend)

	games := d.ListActiveGames(context.Background())
	require.Len(t, games, 1)
	assert.Equal(t, uint64(1), games[0].ID)
}
