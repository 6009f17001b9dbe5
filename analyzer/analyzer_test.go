// SPDX-License-Identifier: GPL-3.0-or-later
package analyzer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	saved   [][]*domain.OriginatorStats
	saveErr error
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) SaveOriginatorStats(stats []*domain.OriginatorStats) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, stats)
	return nil
}

func (s *fakeStore) AllOriginatorStats() ([]*domain.SavedOriginatorStats, error) { return nil, nil }
func (s *fakeStore) SaveDeleteHistory(records []domain.DeleteHistoryRecord) error {
	return nil
}
func (s *fakeStore) DeleteHistory(itemIds []string) error                      { return nil }
func (s *fakeStore) FindHistory(itemId string) (*domain.DeleteHistoryRecord, error) { return nil, nil }
func (s *fakeStore) ListRestorable(now time.Time) ([]*domain.DeleteHistoryRecord, error) {
	return nil, nil
}
func (s *fakeStore) ActiveRules() ([]*domain.CleanupRule, error)    { return nil, nil }
func (s *fakeStore) SaveRule(rule *domain.CleanupRule) (int64, error) { return 0, nil }
func (s *fakeStore) TouchRuleLastRun(id int64, ranAt time.Time) error { return nil }

func testAnalyzer(store domain.Store) *Analyzer {
	log.InitLogging("error")
	return NewAnalyzer(store, NewScorer([]string{"github.com"}))
}

func item(id, originator, subject string, overrides func(*domain.ItemMetadata)) *domain.ItemMetadata {
	domainName := ""
	if at := strings.LastIndexByte(originator, '@'); at > 0 {
		domainName = originator[at+1:]
	}
	m := &domain.ItemMetadata{
		Id:         id,
		ThreadId:   "t-" + id,
		Originator: originator,
		Domain:     domainName,
		Subject:    subject,
		Date:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Size:       1000,
		IsRead:     true,
	}
	if overrides != nil {
		overrides(m)
	}
	return m
}

func TestAggregateCountsArePreserved(t *testing.T) {
	a := testAnalyzer(nil)

	items := []*domain.ItemMetadata{}
	for i := 0; i < 7; i++ {
		items = append(items, item(fmt.Sprintf("m%d", i), fmt.Sprintf("s%d@x.com", i%3), "hello", nil))
	}

	originators := a.Aggregate(items)

	total := 0
	for _, stats := range originators {
		total += stats.TotalCount
		assert.GreaterOrEqual(t, stats.SpamScore, 0.0)
		assert.LessOrEqual(t, stats.SpamScore, 1.0)
		assert.LessOrEqual(t, stats.UnreadCount, stats.TotalCount)
	}
	assert.Equal(t, len(items), total)
}

func TestAggregateScenario(t *testing.T) {
	a := testAnalyzer(&fakeStore{})

	items := []*domain.ItemMetadata{}
	for i := 0; i < 5; i++ {
		items = append(items, item(fmt.Sprintf("a%d", i), "a@x.com", "hello", func(m *domain.ItemMetadata) {
			m.Size = 100000
			m.IsRead = i >= 3
		}))
	}
	for i := 0; i < 2; i++ {
		items = append(items, item(fmt.Sprintf("b%d", i), "b@y.com", "hi", nil))
	}

	originators := a.Aggregate(items)
	assert.Len(t, originators, 2)

	statsA := originators["a@x.com"]
	assert.Equal(t, 5, statsA.TotalCount)
	assert.Equal(t, 3, statsA.UnreadCount)
	assert.Equal(t, int64(500000), statsA.TotalSize)
	assert.Equal(t, int64(100000), statsA.AverageSize())

	statsB := originators["b@y.com"]
	assert.Equal(t, 2, statsB.TotalCount)
	assert.Equal(t, 0, statsB.UnreadCount)
}

func TestAggregateSignals(t *testing.T) {
	a := testAnalyzer(nil)

	items := []*domain.ItemMetadata{
		item("1", "noreply@shop.example", "Re: Weekly Newsletter", func(m *domain.ItemMetadata) {
			m.Snippet = "Click here to UNSUBSCRIBE"
			m.HasAttachment = true
			m.Date = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		}),
		item("2", "noreply@shop.example", "Invoice and receipt", func(m *domain.ItemMetadata) {
			m.Date = time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
		}),
	}

	stats := a.Aggregate(items)["noreply@shop.example"]
	assert.NotNil(t, stats)

	// "Re: Weekly Newsletter" matches both "re:" and "newsletter".
	assert.Equal(t, 1, stats.SubjectPatterns["re:"])
	assert.Equal(t, 1, stats.SubjectPatterns["newsletter"])
	assert.Equal(t, 1, stats.SubjectPatterns["invoice"])
	assert.Equal(t, 1, stats.SubjectPatterns["receipt"])
	assert.Equal(t, 0, stats.SubjectPatterns["unsubscribe"])

	assert.True(t, stats.IsNewsletter)
	assert.True(t, stats.IsAutomated)
	assert.True(t, stats.HasUnsubscribe)
	assert.Equal(t, 1, stats.AttachmentCount)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), stats.OldestDate)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), stats.NewestDate)
	assert.Len(t, stats.ThreadIds, 2)
	assert.Equal(t, []string{"1", "2"}, stats.ItemIds)
}

func TestAggregatePersistsStats(t *testing.T) {
	store := &fakeStore{}
	a := testAnalyzer(store)

	a.Aggregate([]*domain.ItemMetadata{item("1", "a@x.com", "hello", nil)})
	assert.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0], 1)
}

func TestAggregatePersistenceFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{saveErr: fmt.Errorf("disk full")}
	a := testAnalyzer(store)

	originators := a.Aggregate([]*domain.ItemMetadata{item("1", "a@x.com", "hello", nil)})
	assert.Len(t, originators, 1)
	assert.Equal(t, 1, originators["a@x.com"].TotalCount)
}

func TestAggregateDomains(t *testing.T) {
	a := testAnalyzer(nil)

	items := []*domain.ItemMetadata{
		item("1", "a@x.com", "one", func(m *domain.ItemMetadata) { m.IsRead = false }),
		item("2", "b@x.com", "two", nil),
		item("3", "c@y.com", "three", nil),
	}

	domains := a.AggregateDomains(items)
	assert.Len(t, domains, 2)

	x := domains["x.com"]
	assert.Equal(t, 2, x.Count)
	assert.Equal(t, 1, x.UnreadCount)
	assert.Equal(t, int64(2000), x.TotalSize)
	assert.Len(t, x.Originators, 2)
}

func TestExportCsv(t *testing.T) {
	a := testAnalyzer(nil)

	items := []*domain.ItemMetadata{
		item("1", "b@y.com", "hello", nil),
		item("2", "a@x.com", "hi", func(m *domain.ItemMetadata) {
			m.Size = 2 * 1024 * 1024
			m.HasAttachment = true
		}),
	}

	data, err := a.ExportCsv(a.Aggregate(items))
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t,
		"sender,domain,total_emails,unread_count,total_size_mb,oldest_date,newest_date,emails_per_day,spam_score,is_newsletter,is_automated,has_unsubscribe,attachment_count",
		lines[0])
	// Rows are sorted by originator.
	assert.True(t, strings.HasPrefix(lines[1], "a@x.com,x.com,1,0,2.00,"))
	assert.True(t, strings.HasPrefix(lines[2], "b@y.com,y.com,1,0,0.00,"))
	assert.Contains(t, lines[1], ",1")
}
