package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/wfunc/chain-game/internal/errors"
)

// stubBackend 测试用后端桩，按需覆盖函数字段
type stubBackend struct {
	getGame           func(ctx context.Context, gameID uint64) (*RawGame, error)
	getPlayer         func(ctx context.Context, gameID uint64, addr common.Address) (*RawPlayer, error)
	getGamePlayers    func(ctx context.Context, gameID uint64) ([]common.Address, error)
	getActiveGames    func(ctx context.Context) ([]uint64, error)
	getPlayerGames    func(ctx context.Context, addr common.Address) ([]uint64, error)
	houseBalance      func(ctx context.Context) (*big.Int, error)
	blockNumber       func(ctx context.Context) (uint64, error)
	filterGameCreated func(ctx context.Context, fromBlock, toBlock uint64) ([]GameCreatedEvent, error)
	sendTx            func(ctx context.Context, method string) (*types.Transaction, error)
	waitMined         func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	caller            common.Address
	chainID           uint64
}

func (s *stubBackend) GetGame(ctx context.Context, gameID uint64) (*RawGame, error) {
	if s.getGame != nil {
		return s.getGame(ctx, gameID)
	}
	return nil, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) GetPlayer(ctx context.Context, gameID uint64, addr common.Address) (*RawPlayer, error) {
	if s.getPlayer != nil {
		return s.getPlayer(ctx, gameID, addr)
	}
	return nil, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error) {
	if s.getGamePlayers != nil {
		return s.getGamePlayers(ctx, gameID)
	}
	return nil, nil
}

func (s *stubBackend) GetActiveGames(ctx context.Context) ([]uint64, error) {
	if s.getActiveGames != nil {
		return s.getActiveGames(ctx)
	}
	return nil, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) GetPlayerGames(ctx context.Context, addr common.Address) ([]uint64, error) {
	if s.getPlayerGames != nil {
		return s.getPlayerGames(ctx, addr)
	}
	return nil, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) HouseBalance(ctx context.Context) (*big.Int, error) {
	if s.houseBalance != nil {
		return s.houseBalance(ctx)
	}
	return big.NewInt(0), nil
}

func (s *stubBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if s.blockNumber != nil {
		return s.blockNumber(ctx)
	}
	return 0, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) FilterGameCreated(ctx context.Context, fromBlock, toBlock uint64) ([]GameCreatedEvent, error) {
	if s.filterGameCreated != nil {
		return s.filterGameCreated(ctx, fromBlock, toBlock)
	}
	return nil, errors.New(errors.ErrRPCUnavailable)
}

func (s *stubBackend) send(ctx context.Context, method string) (*types.Transaction, error) {
	if s.sendTx != nil {
		return s.sendTx(ctx, method)
	}
	return types.NewTx(&types.LegacyTx{}), nil
}

func (s *stubBackend) CreateGame(ctx context.Context, params CreateGameParams) (*types.Transaction, error) {
	return s.send(ctx, "createGame")
}

func (s *stubBackend) JoinGame(ctx context.Context, gameID uint64, password string, stake *big.Int) (*types.Transaction, error) {
	return s.send(ctx, "joinGame")
}

func (s *stubBackend) CommitScore(ctx context.Context, gameID uint64, hash common.Hash) (*types.Transaction, error) {
	return s.send(ctx, "commitScore")
}

func (s *stubBackend) RevealScore(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error) {
	return s.send(ctx, "revealScore")
}

func (s *stubBackend) CommitRevealAndSubmit(ctx context.Context, gameID uint64, score int64, salt *big.Int) (*types.Transaction, error) {
	return s.send(ctx, "commitRevealAndSubmit")
}

func (s *stubBackend) SubmitCompletion(ctx context.Context, gameID uint64, score int64) (*types.Transaction, error) {
	return s.send(ctx, "submitGameCompletion")
}

func (s *stubBackend) CancelGame(ctx context.Context, gameID uint64) (*types.Transaction, error) {
	return s.send(ctx, "cancelGame")
}

func (s *stubBackend) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if s.waitMined != nil {
		return s.waitMined(ctx, tx)
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(1),
	}, nil
}

func (s *stubBackend) Caller() common.Address {
	return s.caller
}

func (s *stubBackend) ChainID() uint64 {
	if s.chainID == 0 {
		return 31337
	}
	return s.chainID
}
