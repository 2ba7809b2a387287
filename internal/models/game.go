package models

// GameMode 游戏模式
type GameMode string

const (
	// ModeAIVsPlayer 人机对战（单人挑战庄家）
	ModeAIVsPlayer GameMode = "AI_VS_PLAYER"
	// ModePlayerVsPlayer 玩家对战
	ModePlayerVsPlayer GameMode = "PLAYER_VS_PLAYER"
)

// GameStatus 游戏生命周期状态
// 状态机：CREATED → WAITING_VRF → IN_PROGRESS → {COMPLETED | TIED | CANCELLED}
type GameStatus string

const (
	StatusCreated    GameStatus = "CREATED"
	StatusWaitingVRF GameStatus = "WAITING_VRF"
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusCompleted  GameStatus = "COMPLETED"
	StatusTied       GameStatus = "TIED"
	StatusCancelled  GameStatus = "CANCELLED"
)

// IsTerminal 判断状态是否为终态
func (s GameStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTied, StatusCancelled:
		return true
	default:
		return false
	}
}

// Game 链上游戏的规范化快照
// 由 chain.Normalizer 从原始合约记录转换而来，所有金额字段均为十进制字符串（单位：币）
type Game struct {
	ID             uint64     `json:"id"`
	Name           string     `json:"name"`
	Creator        string     `json:"creator"`
	Mode           GameMode   `json:"mode"`
	Status         GameStatus `json:"status"`
	Stake          string     `json:"stake"`
	PrizePool      string     `json:"prize_pool"`
	WinnerPrize    string     `json:"winner_prize"`
	MaxPlayers     int        `json:"max_players"`
	CurrentPlayers int        `json:"current_players"`
	CreatedAt      int64      `json:"created_at"`
	StartedAt      int64      `json:"started_at"`
	CompletedAt    int64      `json:"completed_at"`
	EndTime        int64      `json:"end_time,omitempty"` // 限时赛结束时间，0表示不限时
	Winner         string     `json:"winner"`             // 空字符串表示无赢家
	WinnerScore    int64      `json:"winner_score"`
	FinalScore     int64      `json:"final_score"`
	VRFRequestID   string     `json:"vrf_request_id"`
	VRFFulfilled   bool       `json:"vrf_fulfilled"`
	RandomNumber   string     `json:"random_number"`
	CardOrder      []int      `json:"card_order"`
	HasPassword    bool       `json:"has_password"`
	Players        []string   `json:"players"`
}

// PlayerState 玩家在单局游戏中的状态
type PlayerState string

const (
	PlayerNotStarted PlayerState = "NOT_STARTED"
	PlayerPlaying    PlayerState = "PLAYING"
	PlayerSubmitted  PlayerState = "SUBMITTED"
)

// Player 单局游戏中的玩家记录
// 复合标识为 (GameID, Address)，从属于 Game，不独立存在
type Player struct {
	GameID      uint64      `json:"game_id"`
	Address     string      `json:"address"`
	Joined      bool        `json:"joined"`
	Completed   bool        `json:"completed"`
	MoveCount   int64       `json:"move_count"`
	FinalScore  int64       `json:"final_score"`
	CompletedAt int64       `json:"completed_at"`
	State       PlayerState `json:"state"`
}
