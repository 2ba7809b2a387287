package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建测试数据库
// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.GameSnapshot{},
		&models.CommitRecord{},
	)
	require.NoError(t, err)

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// CreateTestCommitRecord 创建测试提交记录
func CreateTestCommitRecord(chainID, gameID uint64, address string) *models.CommitRecord {
	return &models.CommitRecord{
		ChainID:     chainID,
		GameID:      gameID,
		Address:     address,
		CommitHash:  "0x" + time.Now().Format("20060102150405"),
		Salt:        "123456789",
		Score:       42,
		Committed:   true,
		CommittedAt: time.Now(),
	}
}
