package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

// CardCount 棋盘卡牌数量，VRF完成后排列数组必须恰好为该长度
const CardCount = 52

// 奖金计算常量
// 注意：这些值与合约侧常量重复，合约返回显式奖金字段时优先使用合约值
const (
	// aiWinMultiplierPct 人机对战赢家倍率（押金×1.95，固定5%庄家优势）
	aiWinMultiplierPct = 195
	// pvpWinnerSharePct 玩家对战赢家分成（奖池90%，10%佣金）
	pvpWinnerSharePct = 90
)

// PlayersLookup 玩家名册查询函数，失败时返回错误（名册为空是合法状态，不算致命）
type PlayersLookup func(ctx context.Context, gameID uint64) ([]common.Address, error)

// Normalizer 实体规范化器
// 将原始的、可能溢出或缺失字段的合约记录转换为安全的类型化领域对象，
// 任何内部失败都降级为保留ID的最小默认记录，绝不向上抛出
type Normalizer struct {
	log *zap.Logger
}

// NewNormalizer 创建规范化器
func NewNormalizer(log *zap.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize 规范化原始游戏记录
func (n *Normalizer) Normalize(ctx context.Context, raw *RawGame, lookup PlayersLookup) (game *models.Game) {
	id, _ := ToSafeUint(rawID(raw))

	// 最后一道防线：规范化自身绝不能让调用方崩溃
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("规范化过程异常，返回最小默认记录",
				zap.Uint64("game_id", id),
				zap.Any("panic", r))
			game = minimalGame(id)
		}
	}()

	if raw == nil {
		return minimalGame(0)
	}

	game = &models.Game{
		ID:      id,
		Name:    normalizeName(raw.Name, id),
		Creator: addressOrEmpty(raw.Creator),
	}

	// 模式钳制：未识别的值回退为人机对战并记录（通常意味着ABI或合约版本偏移）
	switch raw.GameType {
	case rawModeAIVsPlayer:
		game.Mode = models.ModeAIVsPlayer
	case rawModePlayerVsPlayer:
		game.Mode = models.ModePlayerVsPlayer
	default:
		n.log.Warn("未识别的游戏模式，可能存在合约版本偏移",
			zap.Uint64("game_id", id),
			zap.Uint8("raw_mode", raw.GameType))
		game.Mode = models.ModeAIVsPlayer
	}

	game.Status = normalizeStatus(raw.Status, raw.VRFFulfilled)

	// 金额字段：定点转换，不经过浮点数
	game.Stake = ToDecimalString(raw.Stake)
	game.PrizePool = ToDecimalString(raw.PrizePool)

	// 人数字段：防御性钳制，不信任原始记录
	maxPlayers, _ := ToSafeInt(raw.MaxPlayers)
	currentPlayers, _ := ToSafeInt(raw.CurrentPlayers)
	if maxPlayers <= 0 {
		maxPlayers = 1
	}
	if game.Mode == models.ModeAIVsPlayer {
		// 人机对战恒为单人，即使原始记录声称不同
		maxPlayers = 1
	}
	if currentPlayers < 0 {
		currentPlayers = 0
	}
	if currentPlayers > maxPlayers {
		currentPlayers = maxPlayers
	}
	game.MaxPlayers = int(maxPlayers)
	game.CurrentPlayers = int(currentPlayers)

	game.CreatedAt, _ = ToSafeInt(raw.CreatedAt)
	game.StartedAt, _ = ToSafeInt(raw.StartedAt)
	game.CompletedAt, _ = ToSafeInt(raw.CompletedAt)
	game.EndTime, _ = ToSafeInt(raw.EndTime)

	game.Winner = addressOrEmpty(raw.Winner)
	game.WinnerScore, _ = ToSafeInt(raw.WinnerScore)
	game.FinalScore, _ = ToSafeInt(raw.FinalScore)

	if raw.VRFRequestID != nil && raw.VRFRequestID.Sign() > 0 {
		game.VRFRequestID = raw.VRFRequestID.String()
	}
	game.VRFFulfilled = raw.VRFFulfilled
	if raw.RandomNumber != nil && raw.RandomNumber.Sign() > 0 {
		game.RandomNumber = raw.RandomNumber.String()
	}
	game.CardOrder = normalizeCardOrder(raw.CardOrder, raw.RandomNumber, raw.VRFFulfilled)

	// 奖金：优先使用合约返回的显式奖金，避免客户端常量与合约漂移
	game.WinnerPrize = n.winnerPrize(raw, game)

	// 密码保护标志：存储哈希非零即受保护
	game.HasPassword = raw.PasswordHash != (common.Hash{})

	// 玩家名册：查询失败容忍为空名册
	if lookup != nil {
		if players, err := lookup(ctx, id); err != nil {
			n.log.Debug("玩家名册查询失败，按空名册处理",
				zap.Uint64("game_id", id),
				zap.Error(err))
		} else {
			game.Players = make([]string, 0, len(players))
			for _, p := range players {
				if p != (common.Address{}) {
					game.Players = append(game.Players, p.Hex())
				}
			}
		}
	}

	return game
}

// NormalizePlayer 规范化原始玩家记录
func (n *Normalizer) NormalizePlayer(raw *RawPlayer, gameID uint64, addr common.Address) *models.Player {
	player := &models.Player{
		GameID:  gameID,
		Address: addr.Hex(),
		State:   models.PlayerNotStarted,
	}
	if raw == nil {
		return player
	}

	player.Joined = raw.Joined
	player.Completed = raw.Completed
	player.MoveCount, _ = ToSafeInt(raw.MoveCount)
	player.FinalScore, _ = ToSafeInt(raw.FinalScore)
	player.CompletedAt, _ = ToSafeInt(raw.CompletedAt)

	switch {
	case raw.Completed:
		player.State = models.PlayerSubmitted
	case raw.Joined:
		player.State = models.PlayerPlaying
	}

	return player
}

// winnerPrize 计算赢家奖金
func (n *Normalizer) winnerPrize(raw *RawGame, game *models.Game) string {
	// 合约显式返回的奖金优先
	if raw.WinnerPrize != nil && raw.WinnerPrize.Sign() > 0 {
		return ToDecimalString(raw.WinnerPrize)
	}

	if game.Status != models.StatusCompleted || game.Winner == "" {
		return "0"
	}

	switch game.Mode {
	case models.ModeAIVsPlayer:
		// 玩家获胜拿回押金×1.95；庄家获胜时winner为零地址，不会进入此分支
		if raw.Stake == nil {
			return "0"
		}
		prize := new(big.Int).Mul(raw.Stake, big.NewInt(aiWinMultiplierPct))
		prize.Quo(prize, big.NewInt(100))
		return ToDecimalString(prize)
	case models.ModePlayerVsPlayer:
		if raw.PrizePool == nil {
			return "0"
		}
		prize := new(big.Int).Mul(raw.PrizePool, big.NewInt(pvpWinnerSharePct))
		prize.Quo(prize, big.NewInt(100))
		return ToDecimalString(prize)
	}
	return "0"
}

// normalizeStatus 规范化生命周期状态
// CREATED和CANCELLED是仅有的无需VRF即可到达的状态，
// 其余状态在随机数未完成时降级为WAITING_VRF
func normalizeStatus(raw uint8, vrfFulfilled bool) models.GameStatus {
	var status models.GameStatus
	switch raw {
	case rawStatusCreated:
		status = models.StatusCreated
	case rawStatusWaitingVRF:
		status = models.StatusWaitingVRF
	case rawStatusInProgress:
		status = models.StatusInProgress
	case rawStatusCompleted:
		status = models.StatusCompleted
	case rawStatusTied:
		status = models.StatusTied
	case rawStatusCancelled:
		status = models.StatusCancelled
	default:
		status = models.StatusCreated
	}

	if !vrfFulfilled {
		switch status {
		case models.StatusInProgress, models.StatusCompleted, models.StatusTied:
			return models.StatusWaitingVRF
		}
	}
	return status
}

// normalizeName 规范化显示名称，缺失或非法UTF-8时使用默认名称
func normalizeName(name string, id uint64) string {
	name = strings.TrimSpace(strings.Trim(name, "\x00"))
	if name == "" || !utf8.ValidString(name) {
		return fmt.Sprintf("Game #%d", id)
	}
	return name
}

// normalizeCardOrder 规范化卡牌排列
// VRF已完成但排列缺失或长度不符时，从随机数确定性推导完整排列
func normalizeCardOrder(raw []*big.Int, randomNumber *big.Int, vrfFulfilled bool) []int {
	if !vrfFulfilled {
		return nil
	}

	if len(raw) == CardCount {
		order := make([]int, 0, CardCount)
		valid := true
		for _, v := range raw {
			n, ok := ToSafeInt(v)
			if !ok || n < 0 || n >= CardCount {
				valid = false
				break
			}
			order = append(order, int(n))
		}
		if valid && isPermutation(order) {
			return order
		}
	}

	if randomNumber == nil || randomNumber.Sign() == 0 {
		return nil
	}
	return deriveCardOrder(randomNumber)
}

// deriveCardOrder 从随机数确定性推导卡牌排列（Fisher-Yates，模数取牌）
func deriveCardOrder(randomNumber *big.Int) []int {
	order := make([]int, CardCount)
	for i := range order {
		order[i] = i
	}

	seed := new(big.Int).Set(randomNumber)
	mod := new(big.Int)
	for i := CardCount - 1; i > 0; i-- {
		mod.Mod(seed, big.NewInt(int64(i+1)))
		j := int(mod.Int64())
		order[i], order[j] = order[j], order[i]
		seed.Quo(seed, big.NewInt(int64(i+1)))
		if seed.Sign() == 0 {
			// 随机数耗尽后用Keccak链继续并不必要，保持确定性即可
			seed.SetInt64(int64(i) + 1)
		}
	}
	return order
}

// isPermutation 校验数组是否为 0..CardCount-1 的排列
func isPermutation(order []int) bool {
	if len(order) != CardCount {
		return false
	}
	seen := make([]bool, CardCount)
	for _, v := range order {
		if v < 0 || v >= CardCount || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// minimalGame 保留ID的最小合法记录
func minimalGame(id uint64) *models.Game {
	return &models.Game{
		ID:          id,
		Name:        fmt.Sprintf("Game #%d", id),
		Mode:        models.ModeAIVsPlayer,
		Status:      models.StatusCreated,
		Stake:       "0",
		PrizePool:   "0",
		WinnerPrize: "0",
		MaxPlayers:  1,
	}
}

// addressOrEmpty 零地址哨兵转换为空字符串
func addressOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// rawID 安全读取原始记录ID
func rawID(raw *RawGame) *big.Int {
	if raw == nil {
		return nil
	}
	return raw.ID
}
