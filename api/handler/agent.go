package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/relay"
)

// Command returns a handler for GET /api/v1/agent/command.
//
// The browser agent polls this endpoint. Claim semantics are at most one
// command per call; a claimed command is gone even if the agent then fails,
// so the user retriggers discovery in that case.
func Command(rl *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd, err := rl.Poll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if cmd == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, cmd)
	}
}

// Tabs returns a handler for POST /api/v1/agent/tabs, the agent's data
// push after acting on a collect-tabs command.
func Tabs(rl *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var push models.TabPush
		if err := c.ShouldBindJSON(&push); err != nil {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		if push.SessionID == "" {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "session_id is required"},
			})
			return
		}
		if len(push.Titles) > 0 && len(push.Titles) != len(push.URLs) {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "titles must align with urls"},
			})
			return
		}

		if err := rl.Push(c.Request.Context(), &push); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.APIResponse{Success: true})
	}
}
