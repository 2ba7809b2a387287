package chain

import (
	"context"
	"time"

	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// Resolver 随机数解析器
// 轮询指定游戏直到外部履约的随机数字段被填充。
// 轮询严格串行（同一时刻至多一个未完成的读取），避免对远端节点造成压力。
// 超时不是硬失败：返回等待中标记，调用方展示等待状态并可稍后重新发起
type Resolver struct {
	backend    Backend
	normalizer *Normalizer
	log        *zap.Logger

	interval    time.Duration
	maxAttempts int
	sleep       func(time.Duration)
}

// NewResolver 创建随机数解析器
func NewResolver(backend Backend, normalizer *Normalizer, cfg *config.VRFConfig, log *zap.Logger) *Resolver {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &Resolver{
		backend:     backend,
		normalizer:  normalizer,
		log:         log,
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       time.Sleep,
	}
}

// Await 等待随机数履约，使用默认尝试次数
// 返回 (游戏快照, 是否仍在等待)；等待中不是错误，永不panic
func (r *Resolver) Await(ctx context.Context, gameID uint64) (*models.Game, bool) {
	return r.AwaitAttempts(ctx, gameID, r.maxAttempts)
}

// AwaitAttempts 等待随机数履约，按指定尝试次数轮询
// 先立即检查一次（很多部署同步履约），未就绪再按固定间隔轮询到次数上限
func (r *Resolver) AwaitAttempts(ctx context.Context, gameID uint64, attempts int) (*models.Game, bool) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastRaw *RawGame

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			r.sleep(r.interval)
		}
		if ctx.Err() != nil {
			break
		}

		raw, err := r.backend.GetGame(ctx, gameID)
		if err != nil {
			// 读取失败不终止轮询，下一轮重读
			r.log.Debug("随机数轮询读取失败",
				zap.Uint64("game_id", gameID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		lastRaw = raw

		if fulfilled(raw) {
			r.log.Debug("随机数已履约",
				zap.Uint64("game_id", gameID),
				zap.Int("attempts", attempt+1))
			return r.normalizer.Normalize(ctx, raw, r.backend.GetGamePlayers), false
		}
	}

	r.log.Info("随机数未在限期内履约，返回等待中",
		zap.Uint64("game_id", gameID),
		zap.Int("attempts", attempts))

	// 返回最后一次观察到的快照，调用方据此展示等待状态
	if lastRaw != nil {
		return r.normalizer.Normalize(ctx, lastRaw, r.backend.GetGamePlayers), true
	}
	return minimalGame(gameID), true
}

// fulfilled 判断随机数字段是否已从空转为已填充
func fulfilled(raw *RawGame) bool {
	return raw != nil && raw.VRFFulfilled && raw.RandomNumber != nil && raw.RandomNumber.Sign() > 0
}
