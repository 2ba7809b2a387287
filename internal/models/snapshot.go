package models

import (
	"encoding/json"
	"time"
)

// GameSnapshot 本地缓存快照表
// 每个 (链ID, 拥有者地址) 对应一行，整体替换，仅作参考数据，不具权威性
type GameSnapshot struct {
	BaseModel
	ChainID   uint64    `gorm:"not null;uniqueIndex:idx_snapshot_key,priority:1" json:"chain_id"`
	Owner     string    `gorm:"size:42;not null;uniqueIndex:idx_snapshot_key,priority:2" json:"owner"`
	Payload   string    `gorm:"type:text" json:"payload"` // []Game 的JSON序列化
	WrittenAt time.Time `json:"written_at"`
}

// Games 反序列化快照中的游戏列表
func (s *GameSnapshot) Games() ([]*Game, error) {
	if s.Payload == "" {
		return nil, nil
	}
	var games []*Game
	if err := json.Unmarshal([]byte(s.Payload), &games); err != nil {
		return nil, err
	}
	return games, nil
}

// SetGames 序列化游戏列表到快照
func (s *GameSnapshot) SetGames(games []*Game) error {
	data, err := json.Marshal(games)
	if err != nil {
		return err
	}
	s.Payload = string(data)
	s.WrittenAt = time.Now()
	return nil
}

// CommitRecord 提交-揭示记录表
// 保存客户端生成的盐值，进程重启后仍可完成揭示
type CommitRecord struct {
	BaseModel
	ChainID     uint64     `gorm:"not null;uniqueIndex:idx_commit_key,priority:1" json:"chain_id"`
	GameID      uint64     `gorm:"not null;uniqueIndex:idx_commit_key,priority:2" json:"game_id"`
	Address     string     `gorm:"size:42;not null;uniqueIndex:idx_commit_key,priority:3" json:"address"`
	CommitHash  string     `gorm:"size:66;not null" json:"commit_hash"`
	Salt        string     `gorm:"size:80;not null" json:"-"` // 十进制大整数字符串，揭示前保密
	Score       int64      `json:"score"`
	Committed   bool       `gorm:"default:false" json:"committed"`
	Revealed    bool       `gorm:"default:false" json:"revealed"`
	CommittedAt time.Time  `json:"committed_at"`
	RevealedAt  *time.Time `json:"revealed_at,omitempty"`
}
