package httpapi

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/duplicate"
	"github.com/maukemana/lumalens/internal/utils"
)

// detectDuplicates handles POST /api/admin/duplicates/detect.
func (s *server) detectDuplicates(c *gin.Context) {
	result, err := s.deps.Duplicate.Detect()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "detection complete", result)
}

type cleanupRequest struct {
	DryRun          bool `json:"dryRun"`
	PreserveBackups bool `json:"preserveBackups"`
}

// cleanupDuplicates handles POST /api/admin/duplicates/cleanup.
func (s *server) cleanupDuplicates(c *gin.Context) {
	var req cleanupRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.deps.Duplicate.PerformCleanup(duplicate.CleanupOptions{DryRun: req.DryRun, PreserveBackups: req.PreserveBackups})
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "cleanup complete", result)
}

// validateDuplicates handles POST /api/admin/duplicates/validate.
func (s *server) validateDuplicates(c *gin.Context) {
	passed, err := s.deps.Duplicate.Validate()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "validation complete", gin.H{"passed": passed})
}

type rollbackRequest struct {
	BackupPath string `json:"backupPath" binding:"required"`
}

// rollbackDuplicates handles POST /api/admin/duplicates/rollback.
func (s *server) rollbackDuplicates(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, err)
		return
	}
	if err := s.deps.Duplicate.Rollback(req.BackupPath); err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "rollback complete", gin.H{"backupPath": req.BackupPath})
}

// duplicateUtility handles GET /api/admin/duplicates/utility: a quick
// summary an admin panel polls without triggering a full cleanup.
func (s *server) duplicateUtility(c *gin.Context) {
	result, err := s.deps.Duplicate.Detect()
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	utils.SendSuccess(c, "duplicate utility", gin.H{
		"totalRecords":     result.TotalRecords,
		"duplicateGroups":  result.DuplicateGroups,
		"duplicateRecords": result.DuplicateRecords,
	})
}

// listBackups handles GET /api/admin/duplicates/backups: enumerates
// images_backup_{unixMillis}.json files next to the flat store, per spec
// §6's persisted state layout.
func (s *server) listBackups(c *gin.Context) {
	dir := s.deps.Config.DataDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		utils.SendAppError(c, apperr.Wrap(apperr.StoreWrite, "list backups", err))
		return
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "images_backup_") && strings.HasSuffix(name, ".json") {
			backups = append(backups, filepath.Join(dir, name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	utils.SendSuccess(c, "backups", gin.H{"backups": backups})
}
