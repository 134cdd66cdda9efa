package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/utils"
)

// configSetRequest is POST /api/config's body: a dot-path key into the
// config tree plus the value to assign, per spec §6.
type configSetRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

// getConfig handles GET /api/config, returning the full tree. Secrets
// (API keys) stay in the response since this endpoint is meant for the
// operator's own admin surface, not a public one — it sits behind the same
// rate limiter and security headers as everything else but carries no
// redaction, matching the config tree's single persisted representation.
func (s *server) getConfig(c *gin.Context) {
	utils.SendSuccess(c, "config", s.deps.Config)
}

// setConfig handles POST /api/config: dot-path set, then persist.
func (s *server) setConfig(c *gin.Context) {
	var req configSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}

	if err := s.deps.Config.Set(req.Key, req.Value); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := s.deps.Config.Save(); err != nil {
		utils.SendInternalError(c, err)
		return
	}

	if s.deps.Batch != nil {
		s.deps.Batch.UpdateConfig(batchConfigFrom(s.deps.Config))
	}

	utils.SendSuccess(c, "config updated", gin.H{"key": req.Key, "value": req.Value})
}
