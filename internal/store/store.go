package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maukemana/lumalens/internal/apperr"
)

// Interface is the Store contract spec §4.2 describes, implemented by both
// the album-partitioned AlbumStore and the legacy single-file FlatStore so
// duplicate-tools code can operate against either.
type Interface interface {
	Initialize() error
	LoadAlbum(albumKey string) ([]ImageRecord, error)
	SaveAlbum(albumKey string, records []ImageRecord) error
	PutImage(record ImageRecord, handling DuplicateHandling) (PutResult, error)
	FindBySourceKey(key string) (ImageRecord, bool, error)
	GetAlbumStatus(albumKey string, expectedImages int) (AlbumStatus, error)
	SearchByIndex(queryTokens []string) ([]string, error)
	AllRecords() ([]ImageRecord, error)
}

// AlbumStore is the primary, album-partitioned Store from spec §4.2: one
// JSON shard per album, a sourceImageKey→albumKey registry, and a
// keyword/description inverted index, all mutated under a single writer
// lock so readers only ever see a pre- or post-save state.
type AlbumStore struct {
	dataDir string

	mu       sync.Mutex
	registry map[string]string // sourceImageKey -> albumKey
	index    *invertedIndex
	cache    *lru.Cache[string, []ImageRecord]
}

// New constructs an AlbumStore rooted at dataDir. Call Initialize before use.
func New(dataDir string) (*AlbumStore, error) {
	cache, err := lru.New[string, []ImageRecord](10)
	if err != nil {
		return nil, fmt.Errorf("construct album cache: %w", err)
	}
	return &AlbumStore{
		dataDir:  dataDir,
		registry: make(map[string]string),
		index:    newInvertedIndex(),
		cache:    cache,
	}, nil
}

func (s *AlbumStore) albumPath(albumKey string) string {
	return filepath.Join(s.dataDir, "albums", albumKey+".json")
}

func (s *AlbumStore) registryPath() string {
	return filepath.Join(s.dataDir, "imageRegistry.json")
}

func (s *AlbumStore) indexPath() string {
	return filepath.Join(s.dataDir, "searchIndex.json")
}

// Initialize loads the registry and inverted index into memory, treating
// missing files as empty structures.
func (s *AlbumStore) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reg map[string]string
	if ok, err := readJSON(s.registryPath(), &reg); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "load registry", err)
	} else if ok {
		s.registry = reg
	}

	var si searchIndex
	if ok, err := readJSON(s.indexPath(), &si); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "load search index", err)
	} else if ok {
		s.index = fromPersisted(si)
	}
	return nil
}

// LoadAlbum returns the current record list for albumKey, consulting the
// LRU cache before reading the shard from disk.
func (s *AlbumStore) LoadAlbum(albumKey string) ([]ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAlbumLocked(albumKey)
}

func (s *AlbumStore) loadAlbumLocked(albumKey string) ([]ImageRecord, error) {
	if records, ok := s.cache.Get(albumKey); ok {
		return records, nil
	}

	var records []ImageRecord
	if _, err := readJSON(s.albumPath(albumKey), &records); err != nil {
		return nil, apperr.Wrap(apperr.StoreWrite, fmt.Sprintf("load album %s", albumKey), err)
	}
	s.cache.Add(albumKey, records)
	return records, nil
}

// SaveAlbum writes the shard atomically, refreshes the cache, and rebuilds
// that album's contribution to both inverted indices.
func (s *AlbumStore) SaveAlbum(albumKey string, records []ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAlbumLocked(albumKey, records)
}

func (s *AlbumStore) saveAlbumLocked(albumKey string, records []ImageRecord) error {
	if err := atomicWriteJSON(s.albumPath(albumKey), records); err != nil {
		return apperr.Wrap(apperr.StoreWrite, fmt.Sprintf("save album %s", albumKey), err)
	}
	s.cache.Add(albumKey, records)

	s.index.removeAlbum(albumKey)
	s.index.addAlbum(albumKey, records)
	if err := atomicWriteJSON(s.indexPath(), s.index.toPersisted()); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "persist search index", err)
	}

	for _, r := range records {
		s.registry[r.SourceImageKey] = albumKey
	}
	if err := atomicWriteJSON(s.registryPath(), s.registry); err != nil {
		return apperr.Wrap(apperr.StoreWrite, "persist registry", err)
	}
	return nil
}

// PutImage finds an existing record by sourceImageKey within record's
// album and applies duplicateHandling, per spec §4.2.
func (s *AlbumStore) PutImage(record ImageRecord, handling DuplicateHandling) (PutResult, error) {
	if record.AlbumKey == "" {
		return PutResult{}, apperr.New(apperr.InputInvalid, "albumKey is required")
	}
	record.Keywords = normalizeKeywords(record.Keywords)

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAlbumLocked(record.AlbumKey)
	if err != nil {
		return PutResult{}, err
	}

	now := time.Now()
	idx := -1
	for i, r := range records {
		if r.SourceImageKey == record.SourceImageKey {
			idx = i
			break
		}
	}

	var result PutResult
	switch {
	case idx < 0:
		if record.ID == "" {
			record.ID = newRecordID(record.AlbumKey, record.SourceImageKey)
		}
		record.CreatedAt = now
		record.LastUpdatedAt = now
		records = append(records, record)
		result = PutResult{Outcome: OutcomeAdded, Record: record}

	case handling == HandlingSkip:
		result = PutResult{Outcome: OutcomeSkipped, Record: records[idx]}

	case handling == HandlingReplace:
		record.ID = records[idx].ID
		record.CreatedAt = records[idx].CreatedAt
		record.LastUpdatedAt = now
		records[idx] = record
		result = PutResult{Outcome: OutcomeReplaced, Record: record}

	default: // HandlingUpdate
		merged := mergeNonEmpty(records[idx], record)
		merged.LastUpdatedAt = now
		records[idx] = merged
		result = PutResult{Outcome: OutcomeUpdated, Record: merged}
	}

	if err := s.saveAlbumLocked(record.AlbumKey, records); err != nil {
		return PutResult{}, err
	}
	return result, nil
}

// mergeNonEmpty shallow-merges non-empty fields of incoming onto existing,
// per spec §4.2's "update" duplicate handling.
func mergeNonEmpty(existing, incoming ImageRecord) ImageRecord {
	merged := existing
	if incoming.Filename != "" {
		merged.Filename = incoming.Filename
	}
	if incoming.SourceURL != "" {
		merged.SourceURL = incoming.SourceURL
	}
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.Caption != "" {
		merged.Caption = incoming.Caption
	}
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if len(incoming.Keywords) > 0 {
		merged.Keywords = incoming.Keywords
	}
	if incoming.Analysis.ModelID != "" {
		merged.Analysis = incoming.Analysis
	}
	return merged
}

// FindBySourceKey resolves key via the registry, then scans the target
// album for the matching record.
func (s *AlbumStore) FindBySourceKey(key string) (ImageRecord, bool, error) {
	s.mu.Lock()
	albumKey, ok := s.registry[key]
	s.mu.Unlock()
	if !ok {
		return ImageRecord{}, false, nil
	}

	records, err := s.LoadAlbum(albumKey)
	if err != nil {
		return ImageRecord{}, false, err
	}
	for _, r := range records {
		if r.SourceImageKey == key {
			return r, true, nil
		}
	}
	return ImageRecord{}, false, nil
}

// GetAlbumStatus reports processing progress against expectedImages.
func (s *AlbumStore) GetAlbumStatus(albumKey string, expectedImages int) (AlbumStatus, error) {
	records, err := s.LoadAlbum(albumKey)
	if err != nil {
		return AlbumStatus{}, err
	}

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

// SearchByIndex returns the album keys whose keyword or description index
// entries intersect queryTokens, sorted for deterministic output.
func (s *AlbumStore) SearchByIndex(queryTokens []string) ([]string, error) {
	s.mu.Lock()
	candidates := s.index.candidateAlbums(queryTokens)
	s.mu.Unlock()

	out := make([]string, 0, len(candidates))
	for a := range candidates {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// AllRecords loads every album shard and concatenates their records. Used
// by the search engine's plain listing and the status handlers.
func (s *AlbumStore) AllRecords() ([]ImageRecord, error) {
	s.mu.Lock()
	albumKeys := make(map[string]struct{}, len(s.registry))
	for _, albumKey := range s.registry {
		albumKeys[albumKey] = struct{}{}
	}
	s.mu.Unlock()

	var all []ImageRecord
	for albumKey := range albumKeys {
		records, err := s.LoadAlbum(albumKey)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

func newRecordID(albumKey, sourceKey string) string {
	return fmt.Sprintf("%s:%s:%d", albumKey, sourceKey, time.Now().UnixNano())
}
