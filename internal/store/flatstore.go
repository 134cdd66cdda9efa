package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maukemana/lumalens/internal/apperr"
)

// FlatStore is the legacy single-file "all-records" mode spec §6 mentions
// as the duplicate-tools backup/rollback target. It implements the same
// Interface as AlbumStore but keeps every record in one images.json.
type FlatStore struct {
	path string

	mu      sync.Mutex
	records []ImageRecord
}

// NewFlatStore constructs a FlatStore backed by dataDir/images.json.
func NewFlatStore(dataDir string) *FlatStore {
	return &FlatStore{path: filepath.Join(dataDir, "images.json")}
}

func (f *FlatStore) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []ImageRecord
	if _, err := readJSON(f.path, &records); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "load flat store", err)
	}
	f.records = records
	return nil
}

func (f *FlatStore) LoadAlbum(albumKey string) ([]ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ImageRecord
	for _, r := range f.records {
		if r.AlbumKey == albumKey {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FlatStore) SaveAlbum(albumKey string, records []ImageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.records[:0:0]
	for _, r := range f.records {
		if r.AlbumKey != albumKey {
			kept = append(kept, r)
		}
	}
	kept = append(kept, records...)
	f.records = kept
	return f.persistLocked()
}

func (f *FlatStore) persistLocked() error {
	if err := atomicWriteJSON(f.path, f.records); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "persist flat store", err)
	}
	return nil
}

func (f *FlatStore) PutImage(record ImageRecord, handling DuplicateHandling) (PutResult, error) {
	if record.AlbumKey == "" {
		return PutResult{}, apperr.New(apperr.InputInvalid, "albumKey is required")
	}
	record.Keywords = normalizeKeywords(record.Keywords)

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for i, r := range f.records {
		if r.SourceImageKey == record.SourceImageKey {
			var result PutResult
			switch handling {
			case HandlingSkip:
				result = PutResult{Outcome: OutcomeSkipped, Record: f.records[i]}
			case HandlingReplace:
				record.ID = f.records[i].ID
				record.CreatedAt = f.records[i].CreatedAt
				record.LastUpdatedAt = now
				f.records[i] = record
				result = PutResult{Outcome: OutcomeReplaced, Record: record}
			default:
				merged := mergeNonEmpty(f.records[i], record)
				merged.LastUpdatedAt = now
				f.records[i] = merged
				result = PutResult{Outcome: OutcomeUpdated, Record: merged}
			}
			return result, f.persistLocked()
		}
	}

	if record.ID == "" {
		record.ID = newRecordID(record.AlbumKey, record.SourceImageKey)
	}
	record.CreatedAt = now
	record.LastUpdatedAt = now
	f.records = append(f.records, record)
	return PutResult{Outcome: OutcomeAdded, Record: record}, f.persistLocked()
}

func (f *FlatStore) FindBySourceKey(key string) (ImageRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.SourceImageKey == key {
			return r, true, nil
		}
	}
	return ImageRecord{}, false, nil
}

func (f *FlatStore) GetAlbumStatus(albumKey string, expectedImages int) (AlbumStatus, error) {
	records, _ := f.LoadAlbum(albumKey)
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		keys[r.SourceImageKey] = struct{}{}
	}
	processed := len(keys)
	var pct float64
	if expectedImages > 0 {
		pct = float64(processed) / float64(expectedImages) * 100
		if pct > 100 {
			pct = 100
		}
	}
	return AlbumStatus{
		Processed:          processed,
		Total:              expectedImages,
		ProcessedImageKeys: keys,
		ProgressPercent:    pct,
		Complete:           expectedImages > 0 && processed >= expectedImages,
	}, nil
}

func (f *FlatStore) SearchByIndex(queryTokens []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		wanted[t] = struct{}{}
	}

	albums := make(map[string]struct{})
	for _, r := range f.records {
		matched := false
		for _, kw := range r.Keywords {
			if _, ok := wanted[strings.ToLower(kw)]; ok {
				matched = true
				break
			}
		}
		if !matched {
			for _, tok := range tokenizeDescription(r.Description) {
				if _, ok := wanted[tok]; ok {
					matched = true
					break
				}
			}
		}
		if matched {
			albums[r.AlbumKey] = struct{}{}
		}
	}

	out := make([]string, 0, len(albums))
	for a := range albums {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FlatStore) AllRecords() ([]ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ImageRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

// BackupPath returns a timestamped backup path alongside the main file,
// used by duplicate tools before destructive cleanup.
func (f *FlatStore) BackupPath(ts time.Time) string {
	dir := filepath.Dir(f.path)
	return filepath.Join(dir, fmt.Sprintf("images_backup_%d.json", ts.Unix()))
}

// Backup writes a snapshot of the current records to BackupPath(ts).
func (f *FlatStore) Backup(ts time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.BackupPath(ts)
	if err := atomicWriteJSON(path, f.records); err != nil {
		return "", apperr.Wrap(apperr.StoreWrite, "backup flat store", err)
	}
	return path, nil
}

// Rollback replaces the current records with the contents of backupPath.
func (f *FlatStore) Rollback(backupPath string) error {
	var records []ImageRecord
	if _, err := readJSON(backupPath, &records); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "read backup for rollback", err)
	}
	f.mu.Lock()
	f.records = records
	defer f.mu.Unlock()
	return f.persistLocked()
}
