package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/chain-game/internal/service"
)

// GameHandler 游戏处理器
type GameHandler struct {
	gameService service.GameService
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(gameService service.GameService) *GameHandler {
	return &GameHandler{
		gameService: gameService,
	}
}

// CreateGame 创建游戏
// @Summary 创建游戏
// @Description 上链创建游戏并等待随机数履约；vrf_pending为true时可稍后轮询
// @Tags Game
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body service.CreateGameRequest true "创建参数"
// @Success 200 {object} service.CreateGameResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/games [post]
func (h *GameHandler) CreateGame(c *gin.Context) {
	var req service.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.gameService.CreateGame(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// JoinGame 加入游戏
// @Summary 加入游戏
// @Tags Game
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body service.JoinGameRequest true "加入参数"
// @Success 200 {object} service.TxResponse
// @Router /api/v1/games/join [post]
func (h *GameHandler) JoinGame(c *gin.Context) {
	var req service.JoinGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.gameService.JoinGame(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitScore 提交分数
// @Summary 提交分数
// @Description 人机对战直接结算；玩家对战走承诺-揭示
// @Tags Game
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body service.SubmitScoreRequest true "分数"
// @Success 200 {object} service.SubmitScoreResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/games/score [post]
func (h *GameHandler) SubmitScore(c *gin.Context) {
	var req service.SubmitScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.gameService.SubmitScore(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CommitScore 提交分数承诺（玩家对战分步流程）
// @Summary 提交分数承诺
// @Tags Game
// @Security Bearer
// @Success 200 {object} service.TxResponse
// @Router /api/v1/games/:id/commit [post]
func (h *GameHandler) CommitScore(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}
	var req struct {
		Score int64 `json:"score" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.gameService.CommitScore(c.Request.Context(), gameID, req.Score)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RevealScore 揭示分数
// @Summary 揭示分数
// @Tags Game
// @Security Bearer
// @Success 200 {object} service.TxResponse
// @Router /api/v1/games/:id/reveal [post]
func (h *GameHandler) RevealScore(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}
	var req struct {
		Score int64 `json:"score" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.gameService.RevealScore(c.Request.Context(), gameID, req.Score)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelGame 取消游戏
// @Summary 取消游戏
// @Tags Game
// @Security Bearer
// @Success 200 {object} service.TxResponse
// @Router /api/v1/games/:id/cancel [post]
func (h *GameHandler) CancelGame(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	resp, err := h.gameService.CancelGame(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetGame 读取单个游戏
// @Summary 游戏详情
// @Tags Game
// @Produce json
// @Security Bearer
// @Success 200 {object} models.Game
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/games/:id [get]
func (h *GameHandler) GetGame(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	game, err := h.gameService.GameDetail(c.Request.Context(), gameID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

// ListActive 列出进行中的游戏
// @Summary 进行中的游戏列表
// @Tags Game
// @Produce json
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/games [get]
func (h *GameHandler) ListActive(c *gin.Context) {
	games := h.gameService.ListActive(c.Request.Context())
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    games,
	})
}

// ListMine 列出签名账户相关的游戏
// @Summary 我的游戏列表
// @Description 走本地快照缓存，可能返回略旧的数据，后台自动对账
// @Tags Game
// @Produce json
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/games/mine [get]
func (h *GameHandler) ListMine(c *gin.Context) {
	games := h.gameService.ListMine(c.Request.Context())
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    games,
	})
}

// AwaitRandomness 等待随机数履约
// @Summary 等待随机数
// @Tags Game
// @Produce json
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/games/:id/randomness [get]
func (h *GameHandler) AwaitRandomness(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	game, pending := h.gameService.AwaitRandomness(c.Request.Context(), gameID)
	c.JSON(http.StatusOK, gin.H{
		"game":        game,
		"vrf_pending": pending,
	})
}

// HouseBalance 庄家资金池余额
// @Summary 庄家资金池余额
// @Tags Game
// @Produce json
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/house/balance [get]
func (h *GameHandler) HouseBalance(c *gin.Context) {
	balance, err := h.gameService.HouseBalance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// pathGameID 解析路径中的游戏ID
func (h *GameHandler) pathGameID(c *gin.Context) (uint64, bool) {
	gameID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || gameID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_GAME_ID",
			Message: "游戏ID无效",
		})
		return 0, false
	}
	return gameID, true
}
