package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/batch"
	"github.com/maukemana/lumalens/internal/config"
	"github.com/maukemana/lumalens/internal/jobqueue"
	"github.com/maukemana/lumalens/internal/logger"
	"github.com/maukemana/lumalens/internal/store"
	"github.com/maukemana/lumalens/internal/utils"
)

// batchConfigFrom projects the live config tree into batch.Config, used
// both at startup and whenever POST /api/config changes a batch-tuning key.
func batchConfigFrom(cfg *config.Config) batch.Config {
	return batch.Config{
		GlobalRatePerMinute:  cfg.Batch.GlobalRatePerMinute,
		MaxConcurrentBatches: cfg.Batch.MaxConcurrentBatches,
		PerBatchConcurrency:  cfg.Batch.PerBatchConcurrency,
		MaxRetries:           cfg.Batch.MaxRetries,
		RetentionSeconds:     cfg.Batch.BatchRetentionSeconds,
	}
}

type startBatchRequest struct {
	AlbumKey          string   `json:"albumKey" binding:"required"`
	DuplicateHandling string   `json:"duplicateHandling"`
	ForceReprocessing bool     `json:"forceReprocessing"`
	MaxImages         int      `json:"maxImages"`
	BatchName         string   `json:"batchName"`
	IncludedImages    []string `json:"includedImages"`
	ExcludedImages    []string `json:"excludedImages"`
}

// startBatch handles POST /api/batch/start per spec §6: lists the album
// from the photo host, pre-filters against existing store records per
// duplicateHandling/forceReprocessing, builds the job list, and hands it to
// BatchManager.
func (s *server) startBatch(c *gin.Context) {
	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	handling := req.DuplicateHandling
	if handling == "" {
		handling = string(store.HandlingSkip)
	}
	if handling != string(store.HandlingSkip) && handling != string(store.HandlingUpdate) && handling != string(store.HandlingReplace) {
		utils.SendValidationError(c, apperr.New(apperr.InputInvalid, "duplicateHandling must be one of skip, update, replace"))
		return
	}

	ctx := c.Request.Context()

	details, err := s.deps.PhotoHost.GetAlbumDetails(ctx, req.AlbumKey)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	sourceImages, err := s.deps.PhotoHost.ListAlbumImages(ctx, req.AlbumKey)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	included := toSet(req.IncludedImages)
	excluded := toSet(req.ExcludedImages)

	var jobs []jobqueue.Job
	var stats jobqueue.DuplicateStatistics
	for _, img := range sourceImages {
		if len(included) > 0 {
			if _, ok := included[img.SourceImageKey]; !ok {
				continue
			}
		}
		if _, ok := excluded[img.SourceImageKey]; ok {
			continue
		}

		_, found, err := s.deps.Store.FindBySourceKey(img.SourceImageKey)
		if err != nil {
			utils.SendAppError(c, err)
			return
		}

		if found {
			if !req.ForceReprocessing && handling == string(store.HandlingSkip) {
				stats.SkippedImages++
				continue
			}
			switch handling {
			case string(store.HandlingUpdate):
				stats.UpdatedImages++
			case string(store.HandlingReplace):
				stats.ReplacedImages++
			}
		}

		jobs = append(jobs, jobqueue.Job{
			Type:              "analyze",
			SourceImageKey:    img.SourceImageKey,
			FetchURL:          img.SourceURL,
			Filename:          img.Filename,
			AlbumKey:          req.AlbumKey,
			AlbumName:         details.Name,
			AlbumPath:         details.Path,
			AlbumHierarchy:    details.Hierarchy,
			DuplicateHandling: handling,
			ForceReprocessing: req.ForceReprocessing,
		})

		if req.MaxImages > 0 && len(jobs) >= req.MaxImages {
			break
		}
	}

	if len(jobs) == 0 {
		utils.SendSuccess(c, "No new images to process", gin.H{"batchId": "", "jobCount": 0, "statistics": stats})
		return
	}

	batchID, jobCount, err := s.deps.Batch.CreateBatch(jobs, req.BatchName, req.AlbumKey, stats)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	// Batch processing outlives the HTTP request that started it.
	if err := s.deps.Batch.StartBatch(context.Background(), batchID, s.processJob, jobqueue.Callbacks{}); err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendCreated(c, "batch started", gin.H{"batchId": batchID, "jobCount": jobCount, "statistics": stats})
}

// processJob is the jobqueue.Processor bound to every batch: fetch the
// source image, run it through AnalysisClient, then persist the result per
// spec §4.5/§4.2.
func (s *server) processJob(ctx context.Context, job jobqueue.Job) error {
	raw, err := s.deps.PhotoHost.FetchImage(ctx, job.FetchURL)
	if err != nil {
		return err
	}

	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.Put(ctx, job.SourceImageKey, raw, ""); err != nil {
			logger.L().Warn("originals mirror put failed", "sourceImageKey", job.SourceImageKey, "error", err)
		}
	}

	modelID := s.deps.Config.LLM.AnalysisModelID
	result := s.deps.Analysis.Analyze(ctx, raw, "", "", "", modelID)
	if !result.OK {
		kind := result.ErrorKind
		if kind == "" {
			kind = apperr.Upstream503
		}
		return apperr.New(kind, "analysis failed for job "+job.ID)
	}

	record := store.ImageRecord{
		SourceImageKey: job.SourceImageKey,
		Filename:       job.Filename,
		SourceURL:      job.FetchURL,
		AlbumKey:       job.AlbumKey,
		AlbumName:      job.AlbumName,
		AlbumPath:      job.AlbumPath,
		AlbumHierarchy: job.AlbumHierarchy,
		Description:    result.Description,
		Keywords:       result.Keywords,
		Analysis: store.AnalysisMeta{
			ModelID:   result.ModelID,
			Timestamp: result.Timestamp,
			JobID:     job.ID,
		},
	}

	_, err = s.deps.Store.PutImage(record, store.DuplicateHandling(job.DuplicateHandling))
	return err
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

// allBatchStatuses handles GET /api/batch/status.
func (s *server) allBatchStatuses(c *gin.Context) {
	utils.SendSuccess(c, "batch statuses", s.deps.Batch.GetAllStatuses())
}

// batchStatus handles GET /api/batch/status/:batchId.
func (s *server) batchStatus(c *gin.Context) {
	view, ok := s.deps.Batch.GetBatchStatus(c.Param("batchId"))
	if !ok {
		utils.SendError(c, http.StatusNotFound, "batch not found", nil)
		return
	}
	utils.SendSuccess(c, "batch status", view)
}

// batchDetails handles GET /api/batch/details/:batchId — the richer
// variant spec §9 says should win where the two legacy servers diverged,
// so it carries the same view as batchStatus.
func (s *server) batchDetails(c *gin.Context) {
	s.batchStatus(c)
}

type batchIDRequest struct {
	BatchID string `json:"batchId"`
}

// pauseBatch handles POST /api/batch/pause.
func (s *server) pauseBatch(c *gin.Context) {
	var req batchIDRequest
	_ = c.ShouldBindJSON(&req)
	if !s.deps.Batch.Pause(req.BatchID) {
		utils.SendError(c, http.StatusNotFound, "batch not found or not running", nil)
		return
	}
	utils.SendSuccess(c, "paused", gin.H{"batchId": req.BatchID})
}

// resumeBatch handles POST /api/batch/resume.
func (s *server) resumeBatch(c *gin.Context) {
	var req batchIDRequest
	_ = c.ShouldBindJSON(&req)
	if !s.deps.Batch.Resume(req.BatchID) {
		utils.SendError(c, http.StatusNotFound, "batch not found or not paused", nil)
		return
	}
	utils.SendSuccess(c, "resumed", gin.H{"batchId": req.BatchID})
}

// cancelBatch handles POST /api/batch/cancel. An empty batchId cancels
// every tracked batch, per spec §4.7's cancelAllBatches.
func (s *server) cancelBatch(c *gin.Context) {
	var req batchIDRequest
	_ = c.ShouldBindJSON(&req)
	if req.BatchID == "" {
		s.deps.Batch.CancelAllBatches()
		utils.SendSuccess(c, "all batches cancelled", nil)
		return
	}
	if !s.deps.Batch.Cancel(req.BatchID) {
		utils.SendError(c, http.StatusNotFound, "batch not found", nil)
		return
	}
	utils.SendSuccess(c, "cancelled", gin.H{"batchId": req.BatchID})
}

// retryBatch handles POST /api/batch/retry.
func (s *server) retryBatch(c *gin.Context) {
	var req batchIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BatchID == "" {
		utils.SendValidationError(c, apperr.New(apperr.InputInvalid, "batchId is required"))
		return
	}
	retried := s.deps.Batch.RetryFailedJobs(req.BatchID)
	utils.SendSuccess(c, "retried", gin.H{"batchId": req.BatchID, "retriedCount": retried})
}
