// SPDX-License-Identifier: GPL-3.0-or-later
package janitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mailkit/gmailsweep/analyzer"
	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"
	"github.com/mailkit/gmailsweep/mail"

	"github.com/sirupsen/logrus"
)

const (
	// BatchSize is the chunk size used for every bulk label mutation.
	BatchSize = 100
	// SuggestionLimit caps the ranked suggestion list.
	SuggestionLimit = 20
	// MinSuggestionCount is the minimum item count an originator needs
	// to be suggested at all.
	MinSuggestionCount = 5
	// DeleteThreshold separates "delete" from "review" suggestions.
	DeleteThreshold = 0.7
	// RestoreWindow is how long a trashed item stays restorable.
	RestoreWindow = 24 * time.Hour
	// PreviewLimit caps the dry-run preview of criteria deletes.
	PreviewLimit = 10
)

const (
	labelTrash     = "TRASH"
	labelInbox     = "INBOX"
	labelImportant = "IMPORTANT"
	labelStarred   = "STARRED"
)

// ItemFetcher is the query surface the janitor re-fetches candidate
// items through before mutating them.
type ItemFetcher interface {
	Fetch(ctx context.Context, query string, maxResults int) ([]*domain.ItemMetadata, error)
}

type Janitor struct {
	client  domain.MailClient
	fetcher ItemFetcher
	store   domain.Store
	cache   domain.Cache
	scorer  *analyzer.Scorer

	namespace     string
	configuration *configuration

	now func() time.Time

	l *logrus.Logger
}

func NewJanitor(client domain.MailClient, fetcher ItemFetcher, store domain.Store, cache domain.Cache, scorer *analyzer.Scorer, namespace string, configFunc ...ConfigFunc) (*Janitor, error) {
	config := &configuration{
		MaxResults: 1000,
	}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Janitor{
		client:        client,
		fetcher:       fetcher,
		store:         store,
		cache:         cache,
		scorer:        scorer,
		namespace:     namespace,
		configuration: config,
		now:           time.Now,
		l:             log.Logger(log.LOG_JANITOR),
	}, nil
}

// Suggest ranks aggregated originators into cleanup candidates, best
// candidates first. Trusted domains are suppressed unless their score
// clears the delete threshold anyway.
func (j *Janitor) Suggest(originators map[string]*domain.OriginatorStats) []*domain.Suggestion {
	candidates := []*domain.OriginatorStats{}
	for _, stats := range originators {
		if stats.TotalCount < MinSuggestionCount {
			continue
		}
		if j.scorer.Trusted(stats.Domain) && stats.SpamScore <= DeleteThreshold {
			continue
		}
		candidates = append(candidates, stats)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].SpamScore != candidates[b].SpamScore {
			return candidates[a].SpamScore > candidates[b].SpamScore
		}
		return candidates[a].TotalCount > candidates[b].TotalCount
	})

	if len(candidates) > SuggestionLimit {
		candidates = candidates[:SuggestionLimit]
	}

	suggestions := make([]*domain.Suggestion, 0, len(candidates))
	for _, stats := range candidates {
		action := "review"
		if stats.SpamScore > DeleteThreshold {
			action = "delete"
		}

		suggestions = append(suggestions, &domain.Suggestion{
			Originator: stats.Originator,
			Domain:     stats.Domain,
			Reason:     suggestionReason(stats),
			Impact: domain.Impact{
				ItemCount:   stats.TotalCount,
				SizeMb:      float64(stats.TotalSize) / (1024 * 1024),
				UnreadCount: stats.UnreadCount,
			},
			Confidence: stats.SpamScore,
			Action:     action,
		})
	}

	return suggestions
}

func suggestionReason(stats *domain.OriginatorStats) string {
	reasons := []string{}
	if stats.IsNewsletter {
		reasons = append(reasons, "Newsletter")
	}
	if stats.IsAutomated {
		reasons = append(reasons, "Automated sender")
	}
	if stats.Velocity() > 1 {
		reasons = append(reasons, fmt.Sprintf("High volume (%.1f emails/day)", stats.Velocity()))
	}
	if stats.ReadRate() < 0.3 {
		reasons = append(reasons, fmt.Sprintf("Low read rate (%.0f%%)", stats.ReadRate()*100))
	}
	if stats.HasUnsubscribe {
		reasons = append(reasons, "Marketing email")
	}

	if len(reasons) == 0 {
		return "Potential spam"
	}
	return strings.Join(reasons, " - ")
}

// DeleteByOriginator trashes every item from one originator. Chunks
// that fail to mutate are counted and skipped, the operation carries
// on with the remaining chunks.
func (j *Janitor) DeleteByOriginator(ctx context.Context, originator string) (*domain.Outcome, error) {
	items, err := j.fetcher.Fetch(ctx, "from:"+originator, j.configuration.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("could not fetch items for originator %s: %w", originator, err)
	}

	if len(items) == 0 {
		return &domain.Outcome{Success: false, Message: "No emails found"}, nil
	}

	deleted, failed := j.trash(ctx, "deleteByOriginator", items)
	return j.deleteOutcome(ctx, deleted, failed, fmt.Sprintf("from %s", originator)), nil
}

// DeleteByCriteria trashes every item matching a structured filter.
// Empty criteria are rejected before any remote call is made.
func (j *Janitor) DeleteByCriteria(ctx context.Context, criteria *domain.Criteria) (*domain.Outcome, error) {
	return j.deleteByCriteria(ctx, criteria, j.configuration.DryRun)
}

func (j *Janitor) deleteByCriteria(ctx context.Context, criteria *domain.Criteria, dryRun bool) (*domain.Outcome, error) {
	if criteria == nil || criteria.IsEmpty() {
		return &domain.Outcome{Success: false, Message: "No criteria specified"}, nil
	}

	query := j.BuildQuery(criteria)
	items, err := j.fetcher.Fetch(ctx, query, j.configuration.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("could not fetch items for criteria: %w", err)
	}

	matches := []*domain.ItemMetadata{}
	for _, item := range items {
		if criteria.ExcludeImportant && item.HasLabel(labelImportant) {
			continue
		}
		if criteria.ExcludeStarred && item.HasLabel(labelStarred) {
			continue
		}
		j.l.WithFields(logrus.Fields{"id": item.Id, "subject": mail.ShortSubject(item.Subject)}).Debug("Item matches criteria")
		matches = append(matches, item)
	}

	if len(matches) == 0 {
		return &domain.Outcome{Success: false, Message: "No emails matched the criteria"}, nil
	}

	if dryRun {
		preview := make([]domain.ItemPreview, 0, PreviewLimit)
		for _, item := range matches {
			if len(preview) == PreviewLimit {
				break
			}
			preview = append(preview, domain.ItemPreview{
				Originator: item.Originator,
				Subject:    item.Subject,
				Date:       item.Date,
				SizeMb:     float64(item.Size) / (1024 * 1024),
			})
		}

		return &domain.Outcome{
			Success:      true,
			Message:      fmt.Sprintf("Would delete %d emails", len(matches)),
			DeletedCount: len(matches),
			Preview:      preview,
		}, nil
	}

	deleted, failed := j.trashChunks(ctx, "deleteByCriteria", matches)
	return j.deleteOutcome(ctx, deleted, failed, "matching the criteria"), nil
}

// BuildQuery translates criteria into a remote search query. The two
// exclusion flags have no query form and are left for the client-side
// filter.
func (j *Janitor) BuildQuery(criteria *domain.Criteria) string {
	parts := []string{}

	// Sender and domain are conjunctive like every other field; a
	// conflicting pair simply matches nothing.
	if criteria.Sender != "" {
		parts = append(parts, "from:"+criteria.Sender)
	}
	if criteria.Domain != "" {
		parts = append(parts, "from:@"+criteria.Domain)
	}

	if criteria.OlderThanDays > 0 {
		cutoff := j.now().AddDate(0, 0, -criteria.OlderThanDays)
		parts = append(parts, "before:"+cutoff.Format("2006/01/02"))
	}

	if criteria.HasAttachment {
		parts = append(parts, "has:attachment")
	}

	if criteria.IsUnread {
		parts = append(parts, "is:unread")
	}

	if criteria.MinSizeMb > 0 {
		parts = append(parts, fmt.Sprintf("size:%d", int64(criteria.MinSizeMb*1024*1024)))
	}

	return strings.Join(parts, " ")
}

func (j *Janitor) trash(ctx context.Context, operation string, items []*domain.ItemMetadata) (deleted int, failed int) {
	if j.configuration.DryRun {
		j.reportProgress(operation, len(items), len(items))
		return len(items), 0
	}

	return j.trashChunks(ctx, operation, items)
}

// trashChunks performs the real label mutation in fixed-size chunks.
// Every successfully trashed chunk is written to the undo buffer
// before the next chunk is touched, so a crash mid-run never loses
// restore records for items that are already gone.
func (j *Janitor) trashChunks(ctx context.Context, operation string, items []*domain.ItemMetadata) (deleted int, failed int) {
	now := j.now()
	deadline := now.Add(RestoreWindow)

	for start := 0; start < len(items); start += BatchSize {
		end := start + BatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		ids := make([]string, len(chunk))
		for i, item := range chunk {
			ids[i] = item.Id
		}

		err := j.client.BatchModify(ctx, ids, []string{labelTrash}, []string{labelInbox})
		if err != nil {
			failed += len(chunk)
			j.l.WithFields(logrus.Fields{"chunk": start / BatchSize, "items": len(chunk), "error": err}).Warn("Could not trash chunk, continuing with remaining chunks")
			j.reportProgress(operation, deleted+failed, len(items))
			continue
		}
		deleted += len(chunk)

		records := make([]domain.DeleteHistoryRecord, len(chunk))
		for i, item := range chunk {
			records[i] = domain.DeleteHistoryRecord{
				ItemId:          item.Id,
				Originator:      item.Originator,
				Subject:         item.Subject,
				DeletedAt:       now,
				RestoreDeadline: deadline,
			}
		}
		err = j.store.SaveDeleteHistory(records)
		if err != nil {
			j.l.WithFields(logrus.Fields{"items": len(records), "error": err}).Warn("Could not record delete history, items are trashed but not restorable via history")
		}

		j.reportProgress(operation, deleted+failed, len(items))
	}

	return deleted, failed
}

func (j *Janitor) deleteOutcome(ctx context.Context, deleted, failed int, what string) *domain.Outcome {
	if !j.configuration.DryRun && deleted > 0 {
		err := j.cache.DeletePattern(ctx, j.namespace+":items:*")
		if err != nil {
			j.l.WithField("error", err).Warn("Could not evict cached item lists, stale entries expire with their ttl")
		}
	}

	verb := "Deleted"
	if j.configuration.DryRun {
		verb = "Would delete"
	}

	message := fmt.Sprintf("%s %d emails %s", verb, deleted, what)
	if failed > 0 {
		message = fmt.Sprintf("%s, %d failed", message, failed)
	}

	return &domain.Outcome{
		Success:      deleted > 0,
		Message:      message,
		DeletedCount: deleted,
		FailedCount:  failed,
	}
}

// Restore moves trashed items back to the inbox. A failed mutation
// aborts the restore; history rows are cleared per restored chunk, so
// an aborted run keeps rows only for items still in the trash.
func (j *Janitor) Restore(ctx context.Context, itemIds []string) (*domain.Outcome, error) {
	if len(itemIds) == 0 {
		return &domain.Outcome{Success: false, Message: "No items to restore"}, nil
	}

	for start := 0; start < len(itemIds); start += BatchSize {
		end := start + BatchSize
		if end > len(itemIds) {
			end = len(itemIds)
		}
		chunk := itemIds[start:end]

		err := j.client.BatchModify(ctx, chunk, []string{labelInbox}, []string{labelTrash})
		if err != nil {
			return nil, fmt.Errorf("could not restore items: %w", err)
		}

		err = j.store.DeleteHistory(chunk)
		if err != nil {
			j.l.WithFields(logrus.Fields{"items": len(chunk), "error": err}).Warn("Could not clear delete history for restored items")
		}

		j.reportProgress("restore", end, len(itemIds))
	}

	return &domain.Outcome{
		Success:      true,
		Message:      fmt.Sprintf("Restored %d emails", len(itemIds)),
		DeletedCount: len(itemIds),
	}, nil
}

// ListRestorable returns the undo-buffer entries whose restore
// deadline has not passed yet.
func (j *Janitor) ListRestorable() ([]*domain.DeleteHistoryRecord, error) {
	records, err := j.store.ListRestorable(j.now())
	if err != nil {
		return nil, fmt.Errorf("could not list restorable items: %w", err)
	}
	return records, nil
}

// RunRule executes one stored cleanup rule. Rules whose action is not
// "delete" run as a dry run regardless of the janitor's own mode.
func (j *Janitor) RunRule(ctx context.Context, rule *domain.CleanupRule) (*domain.Outcome, error) {
	criteria := &domain.Criteria{}
	decoder := json.NewDecoder(bytes.NewReader([]byte(rule.CriteriaJson)))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(criteria)
	if err != nil {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("rule %s carries invalid criteria: %v", rule.Name, err)}
	}

	dryRun := j.configuration.DryRun || rule.Action != "delete"
	outcome, err := j.deleteByCriteria(ctx, criteria, dryRun)
	if err != nil {
		return nil, err
	}

	err = j.store.TouchRuleLastRun(rule.Id, j.now())
	if err != nil {
		j.l.WithFields(logrus.Fields{"rule": rule.Name, "error": err}).Warn("Could not update rule last-run timestamp")
	}

	j.l.WithFields(logrus.Fields{"rule": rule.Name, "dryrun": dryRun, "deleted": outcome.DeletedCount, "failed": outcome.FailedCount}).Info("Executed cleanup rule")
	return outcome, nil
}

// RunActiveRules executes every active stored rule in order. A remote
// failure aborts the run; already-collected outcomes are returned
// alongside the error.
func (j *Janitor) RunActiveRules(ctx context.Context) (map[string]*domain.Outcome, error) {
	rules, err := j.store.ActiveRules()
	if err != nil {
		return nil, fmt.Errorf("could not load active rules: %w", err)
	}

	outcomes := map[string]*domain.Outcome{}
	for _, rule := range rules {
		outcome, err := j.RunRule(ctx, rule)
		if err != nil {
			var validationErr *domain.ValidationError
			if errors.As(err, &validationErr) {
				j.l.WithFields(logrus.Fields{"rule": rule.Name, "error": err}).Warn("Skipping rule with invalid criteria")
				continue
			}
			return outcomes, err
		}
		outcomes[rule.Name] = outcome
	}

	return outcomes, nil
}

// FindLargeAttachments lists the biggest attachment-carrying items at
// or above the given size, largest first.
func (j *Janitor) FindLargeAttachments(ctx context.Context, minSizeMb float64) ([]*domain.ItemMetadata, error) {
	query := fmt.Sprintf("has:attachment size:%d", int64(minSizeMb*1024*1024))
	items, err := j.fetcher.Fetch(ctx, query, 100)
	if err != nil {
		return nil, fmt.Errorf("could not fetch large attachments: %w", err)
	}

	sort.Slice(items, func(a, b int) bool {
		return items[a].Size > items[b].Size
	})
	return items, nil
}

func (j *Janitor) reportProgress(operation string, done, total int) {
	if j.configuration.Progress == nil {
		return
	}
	j.configuration.Progress(operation, done, total)
}
