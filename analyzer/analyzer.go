// SPDX-License-Identifier: GPL-3.0-or-later
package analyzer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/sirupsen/logrus"
)

// Fixed vocabulary of subject patterns counted per originator. A
// subject may match more than one.
var subjectPatterns = []string{"re:", "fwd:", "newsletter", "unsubscribe", "invoice", "receipt"}

var newsletterKeywords = []string{"newsletter", "update", "digest", "weekly", "monthly"}

var automatedKeywords = []string{"noreply", "no-reply", "notification", "automated"}

type Analyzer struct {
	store  domain.Store
	scorer *Scorer

	l *logrus.Logger
}

func NewAnalyzer(store domain.Store, scorer *Scorer) *Analyzer {
	return &Analyzer{
		store:  store,
		scorer: scorer,
		l:      log.Logger(log.LOG_ANALYZER),
	}
}

// Aggregate folds the item set into one statistics record per
// normalized originator, scores every record and persists the result.
// A persistence failure is logged but never invalidates the in-memory
// result.
func (a *Analyzer) Aggregate(items []*domain.ItemMetadata) map[string]*domain.OriginatorStats {
	originators := map[string]*domain.OriginatorStats{}

	for _, item := range items {
		stats, ok := originators[item.Originator]
		if !ok {
			stats = domain.NewOriginatorStats(item.Originator, item.Domain)
			originators[item.Originator] = stats
		}

		stats.TotalCount++
		stats.TotalSize += item.Size
		stats.ThreadIds[item.ThreadId] = true
		stats.ItemIds = append(stats.ItemIds, item.Id)

		if !item.IsRead {
			stats.UnreadCount++
		}
		if item.HasAttachment {
			stats.AttachmentCount++
		}

		if stats.OldestDate.IsZero() || item.Date.Before(stats.OldestDate) {
			stats.OldestDate = item.Date
		}
		if stats.NewestDate.IsZero() || item.Date.After(stats.NewestDate) {
			stats.NewestDate = item.Date
		}

		subjectLower := strings.ToLower(item.Subject)
		for _, pattern := range subjectPatterns {
			if strings.Contains(subjectLower, pattern) {
				stats.SubjectPatterns[pattern]++
			}
		}

		if containsAny(subjectLower, newsletterKeywords) {
			stats.IsNewsletter = true
		}
		if containsAny(item.Originator, automatedKeywords) {
			stats.IsAutomated = true
		}
		if strings.Contains(strings.ToLower(item.Snippet), "unsubscribe") {
			stats.HasUnsubscribe = true
		}
	}

	for _, stats := range originators {
		stats.SpamScore = a.scorer.Score(stats)
	}

	a.persist(originators)

	a.l.WithFields(logrus.Fields{"items": len(items), "originators": len(originators)}).Info("Aggregated items")
	return originators
}

func (a *Analyzer) persist(originators map[string]*domain.OriginatorStats) {
	if a.store == nil {
		return
	}

	all := make([]*domain.OriginatorStats, 0, len(originators))
	for _, stats := range originators {
		all = append(all, stats)
	}

	err := a.store.SaveOriginatorStats(all)
	if err != nil {
		a.l.WithField("error", err).Warn("Could not persist originator stats, in-memory result unaffected")
	}
}

// AggregateDomains reduces the same item set keyed by originator
// domain. Domain records carry no spam score.
func (a *Analyzer) AggregateDomains(items []*domain.ItemMetadata) map[string]*domain.DomainStats {
	domains := map[string]*domain.DomainStats{}

	for _, item := range items {
		stats, ok := domains[item.Domain]
		if !ok {
			stats = domain.NewDomainStats(item.Domain)
			domains[item.Domain] = stats
		}

		stats.Count++
		stats.TotalSize += item.Size
		stats.Originators[item.Originator] = true

		if !item.IsRead {
			stats.UnreadCount++
		}

		if stats.OldestDate.IsZero() || item.Date.Before(stats.OldestDate) {
			stats.OldestDate = item.Date
		}
		if stats.NewestDate.IsZero() || item.Date.After(stats.NewestDate) {
			stats.NewestDate = item.Date
		}
	}

	return domains
}

// ExportCsv renders the statistics set as one flat row per
// originator, sorted by originator for reproducible output.
func (a *Analyzer) ExportCsv(originators map[string]*domain.OriginatorStats) ([]byte, error) {
	keys := make([]string, 0, len(originators))
	for k := range originators {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	err := w.Write([]string{
		"sender", "domain", "total_emails", "unread_count", "total_size_mb",
		"oldest_date", "newest_date", "emails_per_day", "spam_score",
		"is_newsletter", "is_automated", "has_unsubscribe", "attachment_count",
	})
	if err != nil {
		return nil, fmt.Errorf("could not write csv header: %w", err)
	}

	for _, k := range keys {
		stats := originators[k]
		err := w.Write([]string{
			stats.Originator,
			stats.Domain,
			fmt.Sprintf("%d", stats.TotalCount),
			fmt.Sprintf("%d", stats.UnreadCount),
			fmt.Sprintf("%.2f", float64(stats.TotalSize)/(1024*1024)),
			isoOrEmpty(stats.OldestDate),
			isoOrEmpty(stats.NewestDate),
			fmt.Sprintf("%.2f", stats.Velocity()),
			fmt.Sprintf("%.2f", stats.SpamScore),
			fmt.Sprintf("%t", stats.IsNewsletter),
			fmt.Sprintf("%t", stats.IsAutomated),
			fmt.Sprintf("%t", stats.HasUnsubscribe),
			fmt.Sprintf("%d", stats.AttachmentCount),
		})
		if err != nil {
			return nil, fmt.Errorf("could not write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("could not flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func isoOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
