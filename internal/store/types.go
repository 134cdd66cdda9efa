// Package store implements the album-partitioned persistent store from
// spec §4.2: per-album JSON shards, a sourceImageKey→albumKey registry, and
// keyword/description inverted indices, all written through one atomic
// write helper and guarded by a single writer lock.
package store

import "time"

// AnalysisMeta records which model produced an ImageRecord's description
// and keywords, and when.
type AnalysisMeta struct {
	ModelID   string    `json:"modelId"`
	Timestamp time.Time `json:"timestamp"`
	BatchID   string    `json:"batchId"`
	JobID     string    `json:"jobId"`
	Starred   bool      `json:"starred"`
}

// ImageRecord is one analyzed photo, permanently associated with exactly
// one album.
type ImageRecord struct {
	ID              string       `json:"id"`
	SourceImageKey  string       `json:"sourceImageKey"`
	Filename        string       `json:"filename"`
	SourceURL       string       `json:"sourceUrl"`
	Title           string       `json:"title"`
	Caption         string       `json:"caption"`
	AlbumKey        string       `json:"albumKey"`
	AlbumName       string       `json:"albumName"`
	AlbumPath       string       `json:"albumPath"`
	AlbumHierarchy  []string     `json:"albumHierarchy"`
	Description     string       `json:"description"`
	Keywords        []string     `json:"keywords"`
	Analysis        AnalysisMeta `json:"analysis"`
	CreatedAt       time.Time    `json:"createdAt"`
	LastUpdatedAt   time.Time    `json:"lastUpdatedAt"`
}

// DuplicateHandling selects what putImage does when sourceImageKey already
// exists in the target album.
type DuplicateHandling string

const (
	HandlingSkip    DuplicateHandling = "skip"
	HandlingUpdate  DuplicateHandling = "update"
	HandlingReplace DuplicateHandling = "replace"
)

// PutOutcome reports what putImage actually did.
type PutOutcome string

const (
	OutcomeAdded    PutOutcome = "added"
	OutcomeSkipped  PutOutcome = "skipped"
	OutcomeUpdated  PutOutcome = "updated"
	OutcomeReplaced PutOutcome = "replaced"
)

// PutResult is the return value of PutImage.
type PutResult struct {
	Outcome PutOutcome
	Record  ImageRecord
}

// AlbumStatus summarizes processing progress against an expected count.
type AlbumStatus struct {
	Processed           int
	Total               int
	ProcessedImageKeys  map[string]struct{}
	ProgressPercent     float64
	Complete            bool
}

// searchIndex is the on-disk shape of data/searchIndex.json.
type searchIndex struct {
	Keywords     map[string][]string `json:"keywords"`
	Descriptions map[string][]string `json:"descriptions"`
}
