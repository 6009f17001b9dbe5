// SPDX-License-Identifier: GPL-3.0-or-later
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"
	"github.com/mailkit/gmailsweep/mail"

	"github.com/sirupsen/logrus"
)

const (
	// FetchConcurrency is the fixed width of the per-item worker pool.
	FetchConcurrency = 10
	// PageSize is the listing page size requested from the remote.
	PageSize = 100
	// DefaultCacheTtl is used when no override is configured.
	DefaultCacheTtl = time.Hour
)

type Fetcher struct {
	client    domain.MailClient
	cache     domain.Cache
	namespace string
	cacheTtl  time.Duration
	now       func() time.Time

	l *logrus.Logger
}

func NewFetcher(client domain.MailClient, cache domain.Cache, namespace string, cacheTtl time.Duration) *Fetcher {
	if cacheTtl <= 0 {
		cacheTtl = DefaultCacheTtl
	}
	return &Fetcher{
		client:    client,
		cache:     cache,
		namespace: namespace,
		cacheTtl:  cacheTtl,
		now:       time.Now,
		l:         log.Logger(log.LOG_FETCHER),
	}
}

// Fetch pages through the remote listing for the given query and
// resolves per-item metadata through the worker pool. Results keep
// the remote listing order regardless of worker completion order. A
// fresh cache entry short-circuits all remote calls; listing failures
// are fatal while single-item failures only drop that item.
func (f *Fetcher) Fetch(ctx context.Context, query string, maxResults int) ([]*domain.ItemMetadata, error) {
	key := f.itemsKey(query)

	cached, err := f.cache.Get(ctx, key)
	if err == nil {
		items := []*domain.ItemMetadata{}
		if err := json.Unmarshal(cached, &items); err == nil {
			f.l.WithFields(logrus.Fields{"query": query, "items": len(items)}).Debug("Using cached item list")
			return items, nil
		}
		f.l.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Discarding undecodable cache entry")
	}

	f.l.WithFields(logrus.Fields{"query": query, "max": maxResults}).Info("Fetching items")

	items := []*domain.ItemMetadata{}
	pageToken := ""
	for len(items) < maxResults {
		pageSize := int64(PageSize)
		if remaining := int64(maxResults - len(items)); remaining < pageSize {
			pageSize = remaining
		}

		page, err := f.client.ListItems(ctx, query, pageToken, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page.Ids) == 0 {
			break
		}

		items = append(items, f.resolvePage(ctx, page.Ids)...)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
		f.l.WithField("items", len(items)).Debug("Fetched page")
	}

	data, err := json.Marshal(items)
	if err == nil {
		// Fire-and-forget: a failed write only costs the next call a
		// round-trip.
		if err := f.cache.Set(ctx, key, data, f.cacheTtl); err != nil {
			f.l.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Could not cache item list")
		}
	}

	f.l.WithFields(logrus.Fields{"query": query, "items": len(items)}).Info("Fetched items")
	return items, nil
}

// resolvePage fans the page's ids out over the fixed-width pool and
// merges only after all workers are done. Indexing results by listing
// position keeps the output order stable.
func (f *Fetcher) resolvePage(ctx context.Context, ids []string) []*domain.ItemMetadata {
	semaphore := make(chan bool, FetchConcurrency)
	results := make([]*domain.ItemMetadata, len(ids))
	for i := 0; i < len(ids); i++ {
		semaphore <- true
		go func(index int) {
			results[index] = f.resolveItem(ctx, ids[index])
			<-semaphore
		}(i)
	}

	for i := 0; i < FetchConcurrency; i++ {
		semaphore <- true
	}

	items := make([]*domain.ItemMetadata, 0, len(ids))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}
	return items
}

func (f *Fetcher) resolveItem(ctx context.Context, id string) *domain.ItemMetadata {
	raw, err := f.client.GetItem(ctx, id)
	if err != nil {
		f.l.WithFields(logrus.Fields{"id": id, "error": err}).Warn("Skipping unresolvable item")
		return nil
	}

	originator, originatorDomain := mail.NormalizeAddress(raw.Headers["From"])
	subject := mail.DecodeSubject(raw.Headers["Subject"])
	date := mail.ParseDate(raw.Headers["Date"], f.now())

	isRead := true
	for _, l := range raw.LabelIds {
		if l == "UNREAD" {
			isRead = false
			break
		}
	}

	return &domain.ItemMetadata{
		Id:            raw.Id,
		ThreadId:      raw.ThreadId,
		Originator:    originator,
		Domain:        originatorDomain,
		Subject:       subject,
		Date:          date,
		Size:          raw.Size,
		IsRead:        isRead,
		HasAttachment: hasAttachment(raw.Parts),
		Labels:        raw.LabelIds,
		Snippet:       raw.Snippet,
	}
}

// hasAttachment walks the MIME part tree for any part carrying a
// filename.
func hasAttachment(parts []domain.Part) bool {
	for _, p := range parts {
		if p.Filename != "" {
			return true
		}
		if hasAttachment(p.Parts) {
			return true
		}
	}
	return false
}

func (f *Fetcher) itemsKey(query string) string {
	return fmt.Sprintf("%s:items:%x", f.namespace, sha256.Sum256([]byte(query)))
}
