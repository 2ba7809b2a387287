package chain

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// Discovery 实体发现器
// 三种递进策略解析相关游戏ID：索引调用 → 创建事件日志扫描 → 暴力遍历。
// 对外绝不报错——发现全部失败等价于空列表，空列表本身是合法的应用状态
type Discovery struct {
	backend    Backend
	normalizer *Normalizer
	log        *zap.Logger

	batchSize           int
	maxScanID           uint64
	emptyProbeThreshold int
	logScanWindow       uint64
}

// NewDiscovery 创建实体发现器
func NewDiscovery(backend Backend, normalizer *Normalizer, cfg *config.DiscoveryConfig, log *zap.Logger) *Discovery {
	d := &Discovery{
		backend:             backend,
		normalizer:          normalizer,
		log:                 log,
		batchSize:           cfg.BatchSize,
		maxScanID:           cfg.MaxScanID,
		emptyProbeThreshold: cfg.EmptyProbeThreshold,
		logScanWindow:       cfg.LogScanWindow,
	}
	if d.batchSize <= 0 {
		d.batchSize = 50
	}
	if d.maxScanID == 0 {
		d.maxScanID = 1000
	}
	if d.emptyProbeThreshold <= 0 {
		d.emptyProbeThreshold = 100
	}
	if d.logScanWindow == 0 {
		d.logScanWindow = 50000
	}
	return d
}

// ListActiveGames 列出所有进行中的游戏
func (d *Discovery) ListActiveGames(ctx context.Context) []*models.Game {
	ids := d.resolveIDs(ctx)
	games := d.fetchGames(ctx, ids)

	active := make([]*models.Game, 0, len(games))
	for _, g := range games {
		if !g.Status.IsTerminal() {
			active = append(active, g)
		}
	}
	return active
}

// ListGamesForOwner 列出指定地址相关的游戏（创建者或参与者，地址比较不区分大小写）
func (d *Discovery) ListGamesForOwner(ctx context.Context, owner string) []*models.Game {
	// 索引路径：合约维护玩家游戏索引时直接使用
	if ids, err := d.backend.GetPlayerGames(ctx, common.HexToAddress(owner)); err == nil && len(ids) > 0 {
		return d.filterByOwner(d.fetchGames(ctx, dedupe(ids)), owner)
	}

	// 回退路径：全量解析后按创建者/名册过滤
	ids := d.resolveIDs(ctx)
	return d.filterByOwner(d.fetchGames(ctx, ids), owner)
}

// resolveIDs 按递进策略解析游戏ID全集
func (d *Discovery) resolveIDs(ctx context.Context) []uint64 {
	// 策略一：索引调用
	ids, err := d.backend.GetActiveGames(ctx)
	if err == nil {
		return dedupe(ids)
	}
	d.log.Debug("索引调用失败，回退到事件日志扫描", zap.Error(err))

	// 策略二：创建事件日志扫描
	ids, err = d.scanCreationLogs(ctx)
	if err == nil && len(ids) > 0 {
		return dedupe(ids)
	}
	if err != nil {
		d.log.Debug("事件日志扫描失败，回退到暴力遍历", zap.Error(err))
	}

	// 策略三：暴力遍历
	return d.bruteForceScan(ctx)
}

// scanCreationLogs 在有界的近期区块窗口内过滤GameCreated事件
func (d *Discovery) scanCreationLogs(ctx context.Context) ([]uint64, error) {
	head, err := d.backend.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	from := uint64(0)
	if head > d.logScanWindow {
		from = head - d.logScanWindow
	}

	events, err := d.backend.FilterGameCreated(ctx, from, head)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.GameID)
	}
	return ids, nil
}

// bruteForceScan 从ID=1开始顺序探测
// 批量并发取数提高吞吐；累计探测超过空探测阈值仍零命中且当前批全部落空时提前退出，
// 否则持续到硬上限。上限与阈值是部署相关的调优常量（见配置）
func (d *Discovery) bruteForceScan(ctx context.Context) []uint64 {
	var (
		ids     []uint64
		checked int
		hits    int
	)

	for start := uint64(1); start <= d.maxScanID; start += uint64(d.batchSize) {
		end := start + uint64(d.batchSize) - 1
		if end > d.maxScanID {
			end = d.maxScanID
		}

		batchIDs := d.probeBatch(ctx, start, end)
		checked += int(end - start + 1)
		hits += len(batchIDs)
		ids = append(ids, batchIDs...)

		if ctx.Err() != nil {
			break
		}

		if len(batchIDs) == 0 && hits == 0 && checked >= d.emptyProbeThreshold {
			d.log.Debug("暴力遍历零命中提前退出",
				zap.Int("checked", checked))
			break
		}
	}

	d.log.Debug("暴力遍历完成",
		zap.Int("checked", checked),
		zap.Int("hits", hits))
	return ids
}

// probeBatch 并发探测一批ID，结果按ID去重排序，批内顺序无保证也无需保证
func (d *Discovery) probeBatch(ctx context.Context, start, end uint64) []uint64 {
	var (
		mu    sync.Mutex
		found []uint64
		wg    sync.WaitGroup
	)

	for id := start; id <= end; id++ {
		wg.Add(1)
		go func(gameID uint64) {
			defer wg.Done()
			raw, err := d.backend.GetGame(ctx, gameID)
			if err != nil || !raw.Exists() {
				return
			}
			mu.Lock()
			found = append(found, gameID)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found
}

// fetchGames 取数并规范化一组游戏，批量并发，结果按ID排序
// 单个游戏取数失败直接跳过——结构性损坏由规范化器的防御性默认值兜底
func (d *Discovery) fetchGames(ctx context.Context, ids []uint64) []*models.Game {
	if len(ids) == 0 {
		return nil
	}

	var (
		mu    sync.Mutex
		games []*models.Game
	)

	for offset := 0; offset < len(ids); offset += d.batchSize {
		limit := offset + d.batchSize
		if limit > len(ids) {
			limit = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[offset:limit] {
			wg.Add(1)
			go func(gameID uint64) {
				defer wg.Done()
				raw, err := d.backend.GetGame(ctx, gameID)
				if err != nil || !raw.Exists() {
					return
				}
				game := d.normalizer.Normalize(ctx, raw, d.backend.GetGamePlayers)
				mu.Lock()
				games = append(games, game)
				mu.Unlock()
			}(id)
		}
		wg.Wait()
	}

	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

// filterByOwner 按创建者或名册成员过滤，容忍名册不完整
func (d *Discovery) filterByOwner(games []*models.Game, owner string) []*models.Game {
	matched := make([]*models.Game, 0, len(games))
	for _, g := range games {
		if strings.EqualFold(g.Creator, owner) {
			matched = append(matched, g)
			continue
		}
		for _, p := range g.Players {
			if strings.EqualFold(p, owner) {
				matched = append(matched, g)
				break
			}
		}
	}
	return matched
}

// dedupe 按ID去重并升序排序
func dedupe(ids []uint64) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
