// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/log"

	"github.com/stretchr/testify/assert"
)

func testPersistence(t *testing.T) *Persistence {
	t.Helper()
	log.InitLogging("error")

	p, err := NewPersistence(filepath.Join(t.TempDir(), "test.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSaveAndLoadOriginatorStats(t *testing.T) {
	p := testPersistence(t)

	stats := domain.NewOriginatorStats("news@shop.example", "shop.example")
	stats.TotalCount = 12
	stats.UnreadCount = 9
	stats.TotalSize = 54321
	stats.IsNewsletter = true
	stats.SpamScore = 0.8

	err := p.SaveOriginatorStats([]*domain.OriginatorStats{stats})
	assert.NoError(t, err)

	loaded, err := p.AllOriginatorStats()
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, "news@shop.example", loaded[0].Originator)
	assert.Equal(t, "shop.example", loaded[0].Domain)
	assert.Equal(t, 12, loaded[0].TotalCount)
	assert.Equal(t, 9, loaded[0].UnreadCount)
	assert.Equal(t, int64(54321), loaded[0].TotalSize)
	assert.True(t, loaded[0].IsNewsletter)
	assert.False(t, loaded[0].IsAutomated)
	assert.Equal(t, 0.8, loaded[0].SpamScore)
	assert.False(t, loaded[0].LastUpdated.IsZero())

	// Upsert keyed by originator replaces the previous row.
	stats.TotalCount = 13
	err = p.SaveOriginatorStats([]*domain.OriginatorStats{stats})
	assert.NoError(t, err)

	loaded, err = p.AllOriginatorStats()
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, 13, loaded[0].TotalCount)
}

func TestDeleteHistoryLifecycle(t *testing.T) {
	p := testPersistence(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []domain.DeleteHistoryRecord{
		{ItemId: "m1", Originator: "a@x.com", Subject: "one", DeletedAt: now, RestoreDeadline: now.Add(24 * time.Hour)},
		{ItemId: "m2", Originator: "a@x.com", Subject: "two", DeletedAt: now, RestoreDeadline: now.Add(24 * time.Hour)},
		{ItemId: "m3", Originator: "b@y.com", Subject: "three", DeletedAt: now.Add(-48 * time.Hour), RestoreDeadline: now.Add(-24 * time.Hour)},
	}
	err := p.SaveDeleteHistory(records)
	assert.NoError(t, err)

	found, err := p.FindHistory("m1")
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, "a@x.com", found.Originator)
	assert.Equal(t, "one", found.Subject)

	// Only records whose deadline has not passed are restorable.
	restorable, err := p.ListRestorable(now)
	assert.NoError(t, err)
	assert.Len(t, restorable, 2)

	err = p.DeleteHistory([]string{"m1", "m2"})
	assert.NoError(t, err)

	found, err = p.FindHistory("m1")
	assert.NoError(t, err)
	assert.Nil(t, found)

	// Deleting ids without rows is not an error.
	err = p.DeleteHistory([]string{"unknown"})
	assert.NoError(t, err)
}

func TestSaveDeleteHistoryIsIdempotent(t *testing.T) {
	p := testPersistence(t)
	now := time.Now().UTC()

	record := domain.DeleteHistoryRecord{ItemId: "m1", Originator: "a@x.com", DeletedAt: now, RestoreDeadline: now.Add(24 * time.Hour)}
	assert.NoError(t, p.SaveDeleteHistory([]domain.DeleteHistoryRecord{record}))

	record.Subject = "second trashing"
	assert.NoError(t, p.SaveDeleteHistory([]domain.DeleteHistoryRecord{record}))

	found, err := p.FindHistory("m1")
	assert.NoError(t, err)
	assert.Equal(t, "second trashing", found.Subject)
}

func TestRules(t *testing.T) {
	p := testPersistence(t)
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	id, err := p.SaveRule(&domain.CleanupRule{
		Name:         "old newsletters",
		CriteriaJson: `{"domain":"news.example","older_than_days":30}`,
		Action:       "delete",
		IsActive:     true,
		CreatedAt:    created,
	})
	assert.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = p.SaveRule(&domain.CleanupRule{
		Name:         "disabled",
		CriteriaJson: `{"sender":"x@y.com"}`,
		Action:       "review",
		IsActive:     false,
		CreatedAt:    created,
	})
	assert.NoError(t, err)

	rules, err := p.ActiveRules()
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, "old newsletters", rules[0].Name)
	assert.Nil(t, rules[0].LastRun)

	ranAt := created.Add(72 * time.Hour)
	err = p.TouchRuleLastRun(id, ranAt)
	assert.NoError(t, err)

	rules, err = p.ActiveRules()
	assert.NoError(t, err)
	assert.NotNil(t, rules[0].LastRun)
	assert.Equal(t, ranAt, rules[0].LastRun.UTC())

	err = p.TouchRuleLastRun(9999, ranAt)
	assert.EqualError(t, err, "unexpected number of affected rows, expected 1 got 0")
}
