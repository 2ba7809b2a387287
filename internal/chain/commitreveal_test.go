package chain

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/errors"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// memCommitStore 内存提交记录存储
type memCommitStore struct {
	records map[string]*models.CommitRecord
	saveErr error
}

func newMemCommitStore() *memCommitStore {
	return &memCommitStore{records: make(map[string]*models.CommitRecord)}
}

func (s *memCommitStore) key(chainID, gameID uint64, address string) string {
	return fmt.Sprintf("%d:%d:%s", chainID, gameID, address)
}

func (s *memCommitStore) Save(ctx context.Context, record *models.CommitRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	clone := *record
	s.records[s.key(record.ChainID, record.GameID, record.Address)] = &clone
	return nil
}

func (s *memCommitStore) Find(ctx context.Context, chainID, gameID uint64, address string) (*models.CommitRecord, error) {
	record, ok := s.records[s.key(chainID, gameID, address)]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (s *memCommitStore) MarkRevealed(ctx context.Context, chainID, gameID uint64, address string) error {
	if record, ok := s.records[s.key(chainID, gameID, address)]; ok {
		record.Revealed = true
	}
	return nil
}

func newTestCoordinator(backend Backend, store CommitStore) *Coordinator {
	submitter, _ := newTestSubmitter(backend, 3)
	return NewCoordinator(backend, submitter, store, zap.NewNop())
}

func TestCommitHash(t *testing.T) {
	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	salt := big.NewInt(123456789)

	h1 := CommitHash(500, salt, caller, 7)
	h2 := CommitHash(500, salt, caller, 7)

	// 相同输入必须产生相同哈希
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, common.Hash{}, h1)

	// 任一输入变化哈希必须变化
	assert.NotEqual(t, h1, CommitHash(501, salt, caller, 7))
	assert.NotEqual(t, h1, CommitHash(500, big.NewInt(987654321), caller, 7))
	assert.NotEqual(t, h1, CommitHash(500, salt, caller, 8))
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	assert.NotEqual(t, h1, CommitHash(500, salt, other, 7))
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)

	// 全宽度随机，两次生成碰撞概率可忽略
	assert.NotEqual(t, 0, s1.Cmp(s2))
}

func TestCommitSavesSaltBeforeBroadcast(t *testing.T) {
	caller := common.HexToAddress("0x3333333333333333333333333333333333333333")
	store := newMemCommitStore()

	var savedBeforeSend bool
	backend := &stubBackend{
		caller:  caller,
		chainID: 31337,
	}
	backend.sendTx = func(ctx context.Context, method string) (*types.Transaction, error) {
		// 广播时刻盐值必须已落库
		record, _ := store.Find(ctx, 31337, 9, caller.Hex())
		savedBeforeSend = record != nil && record.Salt != ""
		return types.NewTx(&types.LegacyTx{}), nil
	}
	c := newTestCoordinator(backend, store)

	hash, receipt, err := c.Commit(context.Background(), 9, 300)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.True(t, savedBeforeSend)

	// 上链后提交标记更新
	record, err := store.Find(context.Background(), 31337, 9, caller.Hex())
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.Committed)
	assert.Equal(t, hash.Hex(), record.CommitHash)
	assert.Equal(t, int64(300), record.Score)
}

func TestCommitStoreFailureBlocksBroadcast(t *testing.T) {
	store := newMemCommitStore()
	store.saveErr = fmt.Errorf("disk full")

	sent := false
	backend := &stubBackend{}
	backend.sendTx = func(ctx context.Context, method string) (*types.Transaction, error) {
		sent = true
		return types.NewTx(&types.LegacyTx{}), nil
	}
	c := newTestCoordinator(backend, store)

	// 盐值落库失败时绝不广播，否则交易成功但盐值丢失无法挽回
	_, _, err := c.Commit(context.Background(), 9, 300)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatabaseInsert))
	assert.False(t, sent)
}

func TestRevealHappyPath(t *testing.T) {
	caller := common.HexToAddress("0x4444444444444444444444444444444444444444")
	store := newMemCommitStore()
	backend := &stubBackend{caller: caller, chainID: 31337}
	c := newTestCoordinator(backend, store)

	_, _, err := c.Commit(context.Background(), 12, 450)
	require.NoError(t, err)

	receipt, err := c.Reveal(context.Background(), 12, 450)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	record, _ := store.Find(context.Background(), 31337, 12, caller.Hex())
	require.NotNil(t, record)
	assert.True(t, record.Revealed)
}

func TestRevealMissingRecord(t *testing.T) {
	c := newTestCoordinator(&stubBackend{}, newMemCommitStore())

	// 提交记录缺失属于不可恢复的客户端状态丢失
	_, err := c.Reveal(context.Background(), 12, 450)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCommitLost))
}

func TestRevealAlreadyRevealed(t *testing.T) {
	caller := common.HexToAddress("0x5555555555555555555555555555555555555555")
	store := newMemCommitStore()
	backend := &stubBackend{caller: caller}
	c := newTestCoordinator(backend, store)

	_, _, err := c.Commit(context.Background(), 13, 100)
	require.NoError(t, err)
	_, err = c.Reveal(context.Background(), 13, 100)
	require.NoError(t, err)

	// 重复揭示被拒绝
	_, err = c.Reveal(context.Background(), 13, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestRevealCorruptSalt(t *testing.T) {
	caller := common.HexToAddress("0x6666666666666666666666666666666666666666")
	store := newMemCommitStore()
	store.records[store.key(31337, 14, caller.Hex())] = &models.CommitRecord{
		ChainID: 31337,
		GameID:  14,
		Address: caller.Hex(),
		Salt:    "not-a-number",
	}
	backend := &stubBackend{caller: caller, chainID: 31337}
	c := newTestCoordinator(backend, store)

	_, err := c.Reveal(context.Background(), 14, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCommitLost))
}

func TestCommitRevealAndSubmit(t *testing.T) {
	var method string
	backend := &stubBackend{}
	backend.sendTx = func(ctx context.Context, m string) (*types.Transaction, error) {
		method = m
		return types.NewTx(&types.LegacyTx{}), nil
	}
	store := newMemCommitStore()
	c := newTestCoordinator(backend, store)

	receipt, err := c.CommitRevealAndSubmit(context.Background(), 15, 600)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, "commitRevealAndSubmit", method)

	// 单交易路径盐值即用即弃，不落库
	assert.Empty(t, store.records)
}
