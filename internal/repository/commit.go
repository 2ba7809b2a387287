package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/chain-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommitRecordRepository 提交记录仓储接口
// 满足提交-揭示协调器的存储需求：盐值必须存活到揭示完成
type CommitRecordRepository interface {
	BaseRepository
	Save(ctx context.Context, record *models.CommitRecord) error
	Find(ctx context.Context, chainID, gameID uint64, address string) (*models.CommitRecord, error)
	MarkRevealed(ctx context.Context, chainID, gameID uint64, address string) error
	ListPending(ctx context.Context, chainID uint64, address string) ([]*models.CommitRecord, error)
}

// commitRecordRepo 提交记录仓储实现
type commitRecordRepo struct {
	*BaseRepo
}

// NewCommitRecordRepository 创建提交记录仓储
func NewCommitRecordRepository(db *gorm.DB) CommitRecordRepository {
	return &commitRecordRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Save 保存提交记录（同键覆盖）
func (r *commitRecordRepo) Save(ctx context.Context, record *models.CommitRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}, {Name: "game_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"commit_hash", "salt", "score", "committed", "revealed", "committed_at", "updated_at",
		}),
	}).Create(record).Error
}

// Find 查找提交记录，不存在时返回 (nil, nil)
func (r *commitRecordRepo) Find(ctx context.Context, chainID, gameID uint64, address string) (*models.CommitRecord, error) {
	var record models.CommitRecord
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND game_id = ? AND address = ?", chainID, gameID, address).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// MarkRevealed 标记已揭示
func (r *commitRecordRepo) MarkRevealed(ctx context.Context, chainID, gameID uint64, address string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.CommitRecord{}).
		Where("chain_id = ? AND game_id = ? AND address = ?", chainID, gameID, address).
		Updates(map[string]interface{}{
			"revealed":    true,
			"revealed_at": &now,
		}).Error
}

// ListPending 列出已提交但未揭示的记录（进程重启后恢复揭示用）
func (r *commitRecordRepo) ListPending(ctx context.Context, chainID uint64, address string) ([]*models.CommitRecord, error) {
	var records []*models.CommitRecord
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND address = ? AND committed = ? AND revealed = ?", chainID, address, true, false).
		Order("game_id ASC").
		Find(&records).Error
	return records, err
}

// WithTx 使用事务
func (r *commitRecordRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &commitRecordRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
