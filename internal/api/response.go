package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/chain-game/internal/chain"
	"github.com/wfunc/chain-game/internal/errors"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"` // 合约回滚原因
}

// SuccessResponse API成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError 统一错误输出
// AppError按错误码映射HTTP状态；回滚原因先改写为可操作提示再透出，前端可直接展示
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		reason := appErr.Reason
		if appErr.Code == errors.ErrReverted {
			reason = chain.RewriteRevertReason(reason)
		}
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Code:    appErr.Message,
			Message: appErr.Message,
			Details: appErr.Details,
			Reason:  reason,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	})
}

// respondBadRequest 参数错误输出
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "INVALID_REQUEST",
		Message: "请求参数错误",
		Details: err.Error(),
	})
}
