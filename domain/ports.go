// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"context"
	"time"
)

// Part is one node of a message's MIME part tree, reduced to what the
// fetcher needs for attachment detection.
type Part struct {
	Filename string
	Parts    []Part
}

// RemoteItem is the raw per-item payload returned by the remote
// mailbox before the fetcher converts it into ItemMetadata.
type RemoteItem struct {
	Id       string
	ThreadId string
	Headers  map[string]string
	LabelIds []string
	Size     int64
	Snippet  string
	Parts    []Part
}

// ListPage is one page of the remote listing endpoint.
type ListPage struct {
	Ids           []string
	NextPageToken string
}

// MailClient is the narrow remote mailbox surface the core depends
// on. Implementations wrap transport failures in *RemoteAPIError.
type MailClient interface {
	ListItems(ctx context.Context, query string, pageToken string, pageSize int64) (*ListPage, error)
	GetItem(ctx context.Context, id string) (*RemoteItem, error)
	BatchModify(ctx context.Context, ids []string, addLabels []string, removeLabels []string) error
}

// Cache is a best-effort key/value store with expiry. Callers treat
// every error as a miss or a no-op write (fail-open); only the cache
// implementation itself logs the failure details.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Store persists aggregated statistics, the delete-history undo
// buffer and cleanup rule definitions across restarts.
type Store interface {
	Close() error

	SaveOriginatorStats(stats []*OriginatorStats) error
	AllOriginatorStats() ([]*SavedOriginatorStats, error)

	SaveDeleteHistory(records []DeleteHistoryRecord) error
	DeleteHistory(itemIds []string) error
	FindHistory(itemId string) (*DeleteHistoryRecord, error)
	ListRestorable(now time.Time) ([]*DeleteHistoryRecord, error)

	ActiveRules() ([]*CleanupRule, error)
	SaveRule(rule *CleanupRule) (int64, error)
	TouchRuleLastRun(id int64, ranAt time.Time) error
}
