package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/store"
)

// Workflow is the subset of the orchestrator the session handlers drive.
type Workflow interface {
	Start(ctx context.Context, sessionID string) error
	Discover(ctx context.Context, sessionID string) error
	SelectTab(ctx context.Context, sessionID string, index int) error
	Regenerate(ctx context.Context, sessionID string, questionNumber int) error
}

// Start returns a handler for POST /api/v1/session/:id/start.
func Start(wf Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := wf.Start(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.APIResponse{Success: true})
	}
}

// Discover returns a handler for POST /api/v1/session/:id/discover.
//
// Discovery blocks on the agent's poll window, so it runs detached from the
// request; the caller polls GET /session/:id for the outcome. Workflow
// results reach the user through the chat notifier either way.
func Discover(wf Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		go runStep("discover", id, func(ctx context.Context) error {
			return wf.Discover(ctx, id)
		})
		c.JSON(http.StatusAccepted, models.APIResponse{Success: true})
	}
}

// SelectTab returns a handler for POST /api/v1/session/:id/select.
func SelectTab(wf Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req models.SelectTabRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		index := *req.Tab
		go runStep("select_tab", id, func(ctx context.Context) error {
			return wf.SelectTab(ctx, id, index)
		})
		c.JSON(http.StatusAccepted, models.APIResponse{Success: true})
	}
}

// Regenerate returns a handler for POST /api/v1/session/:id/regenerate.
func Regenerate(wf Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req models.RegenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		number := *req.Question
		go runStep("regenerate", id, func(ctx context.Context) error {
			return wf.Regenerate(ctx, id, number)
		})
		c.JSON(http.StatusAccepted, models.APIResponse{Success: true})
	}
}

// GetSession returns a handler for GET /api/v1/session/:id.
func GetSession(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		sess, err := st.GetSession(id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.SessionResponse{
				Success: false,
				Error:   &models.ErrorDetail{Code: models.ErrCodeSessionNotFound, Message: "session not found"},
			})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		status, err := st.GetStatus(id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SessionResponse{
			Success: true,
			Session: sess,
			Status:  status,
		})
	}
}

// runStep executes one detached workflow step. The step owns its own
// context: the triggering HTTP request has already been answered, and
// in-flight steps are never cancelled.
func runStep(name, sessionID string, step func(context.Context) error) {
	if err := step(context.Background()); err != nil {
		slog.Error("workflow step failed", "step", name, "session_id", sessionID, "error", err)
	}
}

// respondError maps a QuizError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var quizErr *models.QuizError
	if !errors.As(err, &quizErr) {
		quizErr = models.NewQuizError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(quizErr), models.APIResponse{
		Success: false,
		Error:   quizErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.QuizError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeSessionNotFound, models.ErrCodeTabNotFound, models.ErrCodeQuestionNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
