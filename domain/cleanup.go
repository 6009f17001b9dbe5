// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

// DeleteHistoryRecord is one row of the undo buffer. It is written
// after each successfully trashed chunk and removed again when the
// item is restored.
type DeleteHistoryRecord struct {
	ItemId          string    `db:"item_id"`
	Originator      string    `db:"originator"`
	Subject         string    `db:"subject"`
	DeletedAt       time.Time `db:"deleted_at"`
	RestoreDeadline time.Time `db:"restore_deadline"`
}

// CleanupRule is a stored rule owned by the durable store. The core
// only executes active rules' criteria and writes back LastRun; rule
// CRUD and schedule parsing belong to the callers.
type CleanupRule struct {
	Id           int64
	Name         string
	CriteriaJson string
	Action       string
	IsActive     bool
	CreatedAt    time.Time
	LastRun      *time.Time
	ScheduleJson string
}

// Criteria is the structured delete filter. All fields are optional
// and conjunctive. ExcludeImportant and ExcludeStarred cannot be
// expressed in a remote query and are applied client-side after the
// fetch.
type Criteria struct {
	Sender           string  `json:"sender,omitempty"`
	Domain           string  `json:"domain,omitempty"`
	OlderThanDays    int     `json:"older_than_days,omitempty"`
	HasAttachment    bool    `json:"has_attachment,omitempty"`
	IsUnread         bool    `json:"is_unread,omitempty"`
	MinSizeMb        float64 `json:"min_size_mb,omitempty"`
	ExcludeImportant bool    `json:"exclude_important,omitempty"`
	ExcludeStarred   bool    `json:"exclude_starred,omitempty"`
}

// IsEmpty reports whether the criteria produce no remote query clause
// at all. Exclusions alone cannot form a query, so a criteria object
// carrying only those is still considered empty.
func (c *Criteria) IsEmpty() bool {
	return c.Sender == "" &&
		c.Domain == "" &&
		c.OlderThanDays == 0 &&
		!c.HasAttachment &&
		!c.IsUnread &&
		c.MinSizeMb == 0
}

// ItemPreview is one line of the dry-run preview returned by
// criteria-based deletes.
type ItemPreview struct {
	Originator string
	Subject    string
	Date       time.Time
	SizeMb     float64
}

// Outcome is the terminal result of a destructive operation. Partial
// completion is a legitimate terminal state: DeletedCount and
// FailedCount are both reported instead of forcing all-or-nothing.
type Outcome struct {
	Success      bool
	Message      string
	DeletedCount int
	FailedCount  int
	Preview      []ItemPreview
}

type Impact struct {
	ItemCount   int
	SizeMb      float64
	UnreadCount int
}

// Suggestion is one ranked cleanup candidate. Confidence equals the
// originator's spam score; Action is "delete" above the confidence
// threshold and "review" below it.
type Suggestion struct {
	Originator string
	Domain     string
	Reason     string
	Impact     Impact
	Confidence float64
	Action     string
}
