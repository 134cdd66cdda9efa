package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/utils"
)

const maxAnalyzeUpload = 20 << 20 // 20 MiB, well above the post-normalization 5 MiB budget

// analyzeImage handles POST /api/analyze per spec §6: multipart upload with
// an "image" file field and an optional "prompt" field, run straight
// through AnalysisClient without persisting anything.
func (s *server) analyzeImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAnalyzeUpload)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		utils.SendInternalError(c, err)
		return
	}

	prompt := c.PostForm("prompt")
	modelID := s.deps.Config.LLM.AnalysisModelID

	result := s.deps.Analysis.Analyze(c.Request.Context(), raw, fileHeader.Header.Get("Content-Type"), prompt, "", modelID)
	if !result.OK {
		utils.SendError(c, http.StatusBadGateway, "analysis failed", nil)
		return
	}

	utils.SendSuccess(c, "analyzed", gin.H{
		"description": result.Description,
		"keywords":    result.Keywords,
		"modelId":     result.ModelID,
		"usage":       result.Usage,
		"timestamp":   result.Timestamp,
	})
}
