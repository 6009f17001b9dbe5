// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

// OriginatorStats is the mutable accumulator built by the aggregator,
// one per normalized originator address. SpamScore is derived by the
// scorer after folding, never an input.
type OriginatorStats struct {
	Originator      string
	Domain          string
	TotalCount      int
	UnreadCount     int
	TotalSize       int64
	OldestDate      time.Time
	NewestDate      time.Time
	SubjectPatterns map[string]int
	ThreadIds       map[string]bool
	ItemIds         []string
	IsNewsletter    bool
	IsAutomated     bool
	SpamScore       float64
	HasUnsubscribe  bool
	AttachmentCount int
}

func NewOriginatorStats(originator, domain string) *OriginatorStats {
	return &OriginatorStats{
		Originator:      originator,
		Domain:          domain,
		SubjectPatterns: map[string]int{},
		ThreadIds:       map[string]bool{},
	}
}

func (s *OriginatorStats) AverageSize() int64 {
	if s.TotalCount == 0 {
		return 0
	}
	return s.TotalSize / int64(s.TotalCount)
}

// Velocity is items per day over the observed date span, with a
// minimum span of one day.
func (s *OriginatorStats) Velocity() float64 {
	if s.OldestDate.IsZero() || s.NewestDate.IsZero() {
		return 0.0
	}
	days := int(s.NewestDate.Sub(s.OldestDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return float64(s.TotalCount) / float64(days)
}

func (s *OriginatorStats) ReadRate() float64 {
	if s.TotalCount == 0 {
		return 0.0
	}
	return 1.0 - float64(s.UnreadCount)/float64(s.TotalCount)
}

// SavedOriginatorStats is the persisted subset of OriginatorStats as
// read back from the durable store.
type SavedOriginatorStats struct {
	Originator   string    `db:"originator"`
	Domain       string    `db:"domain"`
	TotalCount   int       `db:"total_count"`
	UnreadCount  int       `db:"unread_count"`
	TotalSize    int64     `db:"total_size"`
	IsNewsletter bool      `db:"is_newsletter"`
	IsAutomated  bool      `db:"is_automated"`
	SpamScore    float64   `db:"spam_score"`
	LastUpdated  time.Time `db:"last_updated"`
}

// DomainStats is the per-domain reduction of the same item set. It
// carries no spam score.
type DomainStats struct {
	Domain      string
	Count       int
	UnreadCount int
	TotalSize   int64
	Originators map[string]bool
	OldestDate  time.Time
	NewestDate  time.Time
}

func NewDomainStats(domain string) *DomainStats {
	return &DomainStats{
		Domain:      domain,
		Originators: map[string]bool{},
	}
}
