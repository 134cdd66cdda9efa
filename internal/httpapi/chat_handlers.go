package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/utils"
)

// chatRequest is POST /api/chat's body.
type chatRequest struct {
	Message string `json:"message" binding:"required"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

// loadMoreRequest is POST /api/chat/load-more's body: the bridge has no
// server-side session, so the caller replays originalQuery with a new page.
type loadMoreRequest struct {
	OriginalQuery string `json:"originalQuery" binding:"required"`
	Page          int    `json:"page"`
	Limit         int    `json:"limit"`
}

// chat handles POST /api/chat per spec §6/§4.9: one Ask-loop turn, returning
// {response, results[], pagination, resultCount, originalQuery}.
func (s *server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	result, err := s.deps.Bridge.Ask(c.Request.Context(), req.Message, req.Page, req.Limit)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, "ok", gin.H{
		"response":      result.FinalText,
		"results":       result.Results,
		"pagination":    result.Pagination,
		"resultCount":   len(result.Results),
		"originalQuery": result.OriginalQuery,
	})
}

// chatLoadMore handles POST /api/chat/load-more: re-runs the Ask loop
// against originalQuery at the requested page, since the bridge keeps no
// per-conversation state between HTTP requests.
func (s *server) chatLoadMore(c *gin.Context) {
	var req loadMoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	result, err := s.deps.Bridge.Ask(c.Request.Context(), req.OriginalQuery, req.Page, req.Limit)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, "ok", gin.H{
		"response":      result.FinalText,
		"results":       result.Results,
		"pagination":    result.Pagination,
		"resultCount":   len(result.Results),
		"originalQuery": result.OriginalQuery,
	})
}
