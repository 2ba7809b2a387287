package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/wfunc/chain-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository 游戏快照仓储接口
// 快照按 (链ID, 拥有者地址) 整体替换，地址统一小写后入库
type SnapshotRepository interface {
	BaseRepository
	Replace(ctx context.Context, chainID uint64, owner string, games []*models.Game) error
	Find(ctx context.Context, chainID uint64, owner string) (*models.GameSnapshot, error)
	Delete(ctx context.Context, chainID uint64, owner string) error
}

// snapshotRepo 游戏快照仓储实现
type snapshotRepo struct {
	*BaseRepo
}

// NewSnapshotRepository 创建游戏快照仓储
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Replace 整体替换快照
func (r *snapshotRepo) Replace(ctx context.Context, chainID uint64, owner string, games []*models.Game) error {
	snapshot := &models.GameSnapshot{
		ChainID: chainID,
		Owner:   strings.ToLower(owner),
	}
	if err := snapshot.SetGames(games); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "written_at", "updated_at"}),
	}).Create(snapshot).Error
}

// Find 查找快照，不存在时返回 (nil, nil)
func (r *snapshotRepo) Find(ctx context.Context, chainID uint64, owner string) (*models.GameSnapshot, error) {
	var snapshot models.GameSnapshot
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND owner = ?", chainID, strings.ToLower(owner)).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// Delete 删除快照
func (r *snapshotRepo) Delete(ctx context.Context, chainID uint64, owner string) error {
	return r.db.WithContext(ctx).
		Where("chain_id = ? AND owner = ?", chainID, strings.ToLower(owner)).
		Delete(&models.GameSnapshot{}).Error
}

// WithTx 使用事务
func (r *snapshotRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &snapshotRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
