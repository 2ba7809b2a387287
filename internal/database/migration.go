package database

import (
	"fmt"

	"github.com/wfunc/chain-game/internal/logger"
	"github.com/wfunc/chain-game/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据表
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	err := db.AutoMigrate(
		// 本地快照缓存
		&models.GameSnapshot{},

		// 提交-揭示记录
		&models.CommitRecord{},
	)
	if err != nil {
		return fmt.Errorf("数据表迁移失败: %w", err)
	}

	logger.Info("数据表迁移完成")
	return nil
}
