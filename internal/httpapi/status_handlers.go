package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/utils"
)

// getStatus handles GET /api/status: a lightweight health-plus-counts view
// a dashboard polls, distinct from /health which load balancers poll.
func (s *server) getStatus(c *gin.Context) {
	records, err := s.deps.Store.AllRecords()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, "status ok", gin.H{
		"imageCount":   len(records),
		"activeBatches": len(s.deps.Batch.GetAllStatuses()),
		"llmProvider":  s.deps.Config.LLM.Provider,
	})
}

// getImages handles GET /api/images: a plain paginated listing of every
// stored record, most recently updated first.
func (s *server) getImages(c *gin.Context) {
	records, err := s.deps.Store.AllRecords()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	page, limit := utils.GetPagination(c)
	offset := utils.GetOffset(page, limit)

	end := offset + limit
	if offset > len(records) {
		offset = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	utils.SendPaginated(c, "images", records[offset:end], page, limit, len(records))
}

// getDataCount handles GET /api/data/count.
func (s *server) getDataCount(c *gin.Context) {
	records, err := s.deps.Store.AllRecords()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "count", gin.H{"count": len(records)})
}

// search handles GET /api/search?q=: a plain metadata search over q's
// whitespace-split tokens, bypassing the conversational bridge entirely —
// for callers that want a direct scored search without an LLM round trip.
func (s *server) search(c *gin.Context) {
	q := c.Query("q")
	crit := search.Criteria{Keywords: strings.Fields(strings.ToLower(q))}

	outcome, err := s.deps.Search.Search(c.Request.Context(), crit, q)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	records := make([]any, len(outcome.Results))
	for i, r := range outcome.Results {
		records[i] = r.Record
	}

	utils.SendSuccess(c, "search results", gin.H{
		"results":            records,
		"resultCount":        len(records),
		"verificationRan":     outcome.VerificationRan,
		"verificationFailed": outcome.VerificationFailed,
	})
}
