// Package duplicate implements the DuplicateTools from spec §4.10:
// detect/cleanup/validate/rollback against the store's all-records view.
// Keeper selection uses a completeness score (weighted sum of present
// fields), generalized from the teacher's content-hash dedup pattern in
// internal/imaging/validator.go — there the hash decides identity, here the
// score decides which duplicate survives.
package duplicate

import (
	"time"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/store"
)

// Group is one set of records sharing a sourceImageKey, with the
// recommended keeper identified.
type Group struct {
	SourceImageKey string
	Records        []store.ImageRecord
	KeeperIndex    int
}

// DetectResult is Tools.Detect's return value.
type DetectResult struct {
	Groups          []Group `json:"groups"`
	TotalRecords    int     `json:"totalRecords"`
	DuplicateGroups int     `json:"duplicateGroups"`
	DuplicateRecords int    `json:"duplicateRecords"`
}

// CleanupOptions configures PerformCleanup.
type CleanupOptions struct {
	DryRun          bool
	PreserveBackups bool
}

// CleanupResult is PerformCleanup's return value.
type CleanupResult struct {
	Success          bool
	DuplicatesRemoved int
	FinalImageCount  int
	BackupPath       string
	ValidationPassed bool
}

// Tools operates against a FlatStore — spec §4.10 describes cleanup
// operating on "the all-records file."
type Tools struct {
	Store *store.FlatStore
}

// New constructs duplicate Tools bound to fs.
func New(fs *store.FlatStore) *Tools {
	return &Tools{Store: fs}
}

// completenessScore sums a weight for each field considered "present"
// when scoring a record for keeper selection.
func completenessScore(r store.ImageRecord) int {
	score := 0
	if r.Description != "" {
		score += 3
	}
	if len(r.Keywords) > 0 {
		score += 3
	}
	if r.Title != "" {
		score++
	}
	if r.Caption != "" {
		score++
	}
	if r.Filename != "" {
		score++
	}
	if r.SourceURL != "" {
		score++
	}
	if r.Analysis.ModelID != "" {
		score++
	}
	return score
}

// Detect groups all records by sourceImageKey, returning only groups with
// more than one record, each with a recommended keeper (highest
// completeness score, ties broken by newest lastUpdatedAt).
func (t *Tools) Detect() (DetectResult, error) {
	records, err := t.Store.AllRecords()
	if err != nil {
		return DetectResult{}, err
	}

	byKey := make(map[string][]store.ImageRecord)
	var order []string
	for _, r := range records {
		if _, ok := byKey[r.SourceImageKey]; !ok {
			order = append(order, r.SourceImageKey)
		}
		byKey[r.SourceImageKey] = append(byKey[r.SourceImageKey], r)
	}

	var groups []Group
	duplicateRecords := 0
	for _, key := range order {
		recs := byKey[key]
		if len(recs) <= 1 {
			continue
		}
		keeper := pickKeeper(recs)
		groups = append(groups, Group{SourceImageKey: key, Records: recs, KeeperIndex: keeper})
		duplicateRecords += len(recs) - 1
	}

	return DetectResult{
		Groups:           groups,
		TotalRecords:     len(records),
		DuplicateGroups:  len(groups),
		DuplicateRecords: duplicateRecords,
	}, nil
}

func pickKeeper(records []store.ImageRecord) int {
	best := 0
	bestScore := completenessScore(records[0])
	for i := 1; i < len(records); i++ {
		s := completenessScore(records[i])
		if s > bestScore || (s == bestScore && records[i].LastUpdatedAt.After(records[best].LastUpdatedAt)) {
			best = i
			bestScore = s
		}
	}
	return best
}

// PerformCleanup backs up the all-records file, removes non-keeper
// duplicate records, and validates the result.
func (t *Tools) PerformCleanup(opts CleanupOptions) (CleanupResult, error) {
	detected, err := t.Detect()
	if err != nil {
		return CleanupResult{}, err
	}

	backupPath, err := t.Store.Backup(time.Now())
	if err != nil {
		return CleanupResult{}, apperr.Wrap(apperr.StoreWrite, "backup before cleanup", err)
	}

	if opts.DryRun {
		return CleanupResult{
			Success:           true,
			DuplicatesRemoved: detected.DuplicateRecords,
			FinalImageCount:   detected.TotalRecords - detected.DuplicateRecords,
			BackupPath:        backupPath,
			ValidationPassed:  true,
		}, nil
	}

	toRemove := make(map[string]struct{}) // sourceImageKey -> (all but keeper identified by position)
	removeIDs := make(map[string]struct{})
	for _, g := range detected.Groups {
		toRemove[g.SourceImageKey] = struct{}{}
		for i, r := range g.Records {
			if i != g.KeeperIndex {
				removeIDs[r.ID] = struct{}{}
			}
		}
	}

	all, err := t.Store.AllRecords()
	if err != nil {
		return CleanupResult{}, err
	}
	kept := make([]store.ImageRecord, 0, len(all))
	byAlbum := make(map[string][]store.ImageRecord)
	touchedAlbums := make(map[string]struct{})
	for _, r := range all {
		if _, remove := removeIDs[r.ID]; remove {
			touchedAlbums[r.AlbumKey] = struct{}{}
			continue
		}
		kept = append(kept, r)
		byAlbum[r.AlbumKey] = append(byAlbum[r.AlbumKey], r)
	}

	// Every album that lost at least one record must be re-saved, even if
	// it now has zero records left — SaveAlbum only touches albums it's
	// explicitly called with, so an album with no surviving records needs
	// an explicit empty-slice save to actually drop its stale shard entry.
	for albumKey := range byAlbum {
		touchedAlbums[albumKey] = struct{}{}
	}
	for albumKey := range touchedAlbums {
		if err := t.Store.SaveAlbum(albumKey, byAlbum[albumKey]); err != nil {
			return CleanupResult{}, err
		}
	}

	validation, err := t.Validate()
	if err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{
		Success:           true,
		DuplicatesRemoved: len(removeIDs),
		FinalImageCount:   len(kept),
		ValidationPassed:  validation,
	}
	if opts.PreserveBackups {
		result.BackupPath = backupPath
	}
	return result, nil
}

// Validate re-runs Detect and passes iff zero duplicate groups remain.
func (t *Tools) Validate() (bool, error) {
	detected, err := t.Detect()
	if err != nil {
		return false, err
	}
	return detected.DuplicateGroups == 0, nil
}

// Rollback restores the named backup.
func (t *Tools) Rollback(backupPath string) error {
	if backupPath == "" {
		return apperr.New(apperr.InputInvalid, "backup path is required")
	}
	return t.Store.Rollback(backupPath)
}
