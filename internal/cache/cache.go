package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/logger"
	"github.com/wfunc/chain-game/internal/models"
	"github.com/wfunc/chain-game/internal/repository"
	"go.uber.org/zap"
)

// FetchFunc 权威数据拉取函数（对接实体发现器）
type FetchFunc func(ctx context.Context, owner string) []*models.Game

// UpdateFunc 快照更新回调
type UpdateFunc func(owner string, games []*models.Game)

// entry 缓存条目
type entry struct {
	games     []*models.Game
	writtenAt time.Time
}

// ReconcilingCache 对账式本地缓存
// 链上状态是唯一权威，缓存只为展示加速：命中即返回（可能过期），
// 同时后台拉取最新快照整体替换。并发刷新同键去重，写入后写为准
type ReconcilingCache struct {
	chainID   uint64
	fetch     FetchFunc
	snapshots repository.SnapshotRepository
	log       *zap.Logger

	refreshTimeout time.Duration
	persist        bool

	mu         sync.RWMutex
	entries    map[string]*entry
	refreshing map[string]bool

	subMu  sync.RWMutex
	subs   map[string]map[int]UpdateFunc
	nextID int
}

// New 创建对账式缓存
func New(chainID uint64, fetch FetchFunc, snapshots repository.SnapshotRepository, cfg *config.CacheConfig) *ReconcilingCache {
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}
	return &ReconcilingCache{
		chainID:        chainID,
		fetch:          fetch,
		snapshots:      snapshots,
		log:            logger.GetModuleLogger("cache"),
		refreshTimeout: refreshTimeout,
		persist:        cfg.Persist,
		entries:        make(map[string]*entry),
		refreshing:     make(map[string]bool),
		subs:           make(map[string]map[int]UpdateFunc),
	}
}

// key 缓存键：链ID + 小写地址
func (c *ReconcilingCache) key(owner string) string {
	return fmt.Sprintf("%d:%s", c.chainID, strings.ToLower(owner))
}

// Get 读取快照
// 命中返回缓存副本并触发后台刷新；未命中先尝试落盘快照，再退化为阻塞刷新
func (c *ReconcilingCache) Get(ctx context.Context, owner string) []*models.Game {
	k := c.key(owner)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		c.RefreshAsync(owner)
		return e.games
	}

	// 冷启动：落盘快照先顶上，同样触发后台刷新
	if games, ok := c.loadSnapshot(ctx, owner); ok {
		c.mu.Lock()
		c.entries[k] = &entry{games: games, writtenAt: time.Now()}
		c.mu.Unlock()
		c.RefreshAsync(owner)
		return games
	}

	return c.Refresh(ctx, owner)
}

// Refresh 阻塞刷新：拉取权威数据并整体替换
func (c *ReconcilingCache) Refresh(ctx context.Context, owner string) []*models.Game {
	start := time.Now()
	games := c.fetch(ctx, owner)
	c.Put(ctx, owner, games)
	logger.LogCacheRefresh(c.key(owner), len(games), time.Since(start), nil)
	return games
}

// Put 整体替换快照并通知订阅者，后写为准
func (c *ReconcilingCache) Put(ctx context.Context, owner string, games []*models.Game) {
	k := c.key(owner)

	c.mu.Lock()
	c.entries[k] = &entry{games: games, writtenAt: time.Now()}
	c.mu.Unlock()

	if c.persist && c.snapshots != nil {
		if err := c.snapshots.Replace(ctx, c.chainID, owner, games); err != nil {
			c.log.Warn("快照落盘失败", zap.String("key", k), zap.Error(err))
		}
	}

	c.notify(owner, games)
}

// Invalidate 丢弃缓存条目（落盘快照保留）
func (c *ReconcilingCache) Invalidate(owner string) {
	c.mu.Lock()
	delete(c.entries, c.key(owner))
	c.mu.Unlock()
}

// OnUpdated 订阅指定地址的快照更新，返回退订函数
func (c *ReconcilingCache) OnUpdated(owner string, fn UpdateFunc) func() {
	k := c.key(owner)

	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.subs[k] == nil {
		c.subs[k] = make(map[int]UpdateFunc)
	}
	id := c.nextID
	c.nextID++
	c.subs[k][id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[k], id)
	}
}

// RefreshAsync 后台刷新，单键同一时刻至多一个在途刷新
func (c *ReconcilingCache) RefreshAsync(owner string) {
	k := c.key(owner)

	c.mu.Lock()
	if c.refreshing[k] {
		c.mu.Unlock()
		return
	}
	c.refreshing[k] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, k)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()
		c.Refresh(ctx, owner)
	}()
}

// loadSnapshot 从落盘快照恢复
func (c *ReconcilingCache) loadSnapshot(ctx context.Context, owner string) ([]*models.Game, bool) {
	if !c.persist || c.snapshots == nil {
		return nil, false
	}

	snapshot, err := c.snapshots.Find(ctx, c.chainID, owner)
	if err != nil || snapshot == nil {
		return nil, false
	}
	games, err := snapshot.Games()
	if err != nil {
		// 损坏的快照直接丢弃，下一次写入覆盖
		c.log.Warn("落盘快照损坏，忽略", zap.String("owner", owner), zap.Error(err))
		return nil, false
	}
	return games, true
}

// notify 通知订阅者，回调在独立goroutine执行避免阻塞写入方
func (c *ReconcilingCache) notify(owner string, games []*models.Game) {
	k := c.key(owner)

	c.subMu.RLock()
	fns := make([]UpdateFunc, 0, len(c.subs[k]))
	for _, fn := range c.subs[k] {
		fns = append(fns, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range fns {
		go fn(owner, games)
	}
}
