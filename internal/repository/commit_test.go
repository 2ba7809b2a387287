package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/models"
)

func TestCommitRecordSaveAndFind(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	repo := NewCommitRecordRepository(db)
	ctx := context.Background()

	record := CreateTestCommitRecord(31337, 7, "0x0000000000000000000000000000000000000001")
	require.NoError(t, repo.Save(ctx, record))

	found, err := repo.Find(ctx, 31337, 7, record.Address)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "123456789", found.Salt)
	assert.Equal(t, int64(42), found.Score)

	// 不存在返回 (nil, nil)
	found, err = repo.Find(ctx, 31337, 8, record.Address)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCommitRecordSaveUpserts(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	repo := NewCommitRecordRepository(db)
	ctx := context.Background()

	addr := "0x0000000000000000000000000000000000000002"
	record := CreateTestCommitRecord(31337, 9, addr)
	record.Committed = false
	require.NoError(t, repo.Save(ctx, record))

	// 同键覆盖更新提交标记与盐值
	updated := CreateTestCommitRecord(31337, 9, addr)
	updated.Salt = "987654321"
	require.NoError(t, repo.Save(ctx, updated))

	var count int64
	require.NoError(t, db.Model(&models.CommitRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	found, err := repo.Find(ctx, 31337, 9, addr)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "987654321", found.Salt)
	assert.True(t, found.Committed)
}

func TestCommitRecordMarkRevealed(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	repo := NewCommitRecordRepository(db)
	ctx := context.Background()

	addr := "0x0000000000000000000000000000000000000003"
	require.NoError(t, repo.Save(ctx, CreateTestCommitRecord(31337, 11, addr)))
	require.NoError(t, repo.MarkRevealed(ctx, 31337, 11, addr))

	found, err := repo.Find(ctx, 31337, 11, addr)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Revealed)
	assert.NotNil(t, found.RevealedAt)
}

func TestCommitRecordListPending(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	repo := NewCommitRecordRepository(db)
	ctx := context.Background()

	addr := "0x0000000000000000000000000000000000000004"

	// 已提交未揭示 × 2（乱序写入）
	require.NoError(t, repo.Save(ctx, CreateTestCommitRecord(31337, 20, addr)))
	require.NoError(t, repo.Save(ctx, CreateTestCommitRecord(31337, 5, addr)))

	// 已揭示的不算待处理
	revealed := CreateTestCommitRecord(31337, 6, addr)
	require.NoError(t, repo.Save(ctx, revealed))
	require.NoError(t, repo.MarkRevealed(ctx, 31337, 6, addr))

	// 未提交的不算待处理
	uncommitted := CreateTestCommitRecord(31337, 7, addr)
	uncommitted.Committed = false
	require.NoError(t, repo.Save(ctx, uncommitted))

	// 其他地址与其他链不可见
	require.NoError(t, repo.Save(ctx, CreateTestCommitRecord(31337, 8, "0x0000000000000000000000000000000000000005")))
	require.NoError(t, repo.Save(ctx, CreateTestCommitRecord(1, 9, addr)))

	pending, err := repo.ListPending(ctx, 31337, addr)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// 按游戏ID升序
	assert.Equal(t, uint64(5), pending[0].GameID)
	assert.Equal(t, uint64(20), pending[1].GameID)
}
