// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

// ItemMetadata is the lightweight, immutable per-message record the
// whole pipeline runs on. Originator and Domain are normalized to
// lower case when the record is built.
type ItemMetadata struct {
	Id            string    `json:"id"`
	ThreadId      string    `json:"thread_id"`
	Originator    string    `json:"originator"`
	Domain        string    `json:"domain"`
	Subject       string    `json:"subject"`
	Date          time.Time `json:"date"`
	Size          int64     `json:"size"`
	IsRead        bool      `json:"is_read"`
	HasAttachment bool      `json:"has_attachment"`
	Labels        []string  `json:"labels"`
	Snippet       string    `json:"snippet"`
}

func (i *ItemMetadata) AgeDays(now time.Time) int {
	return int(now.Sub(i.Date).Hours() / 24)
}

func (i *ItemMetadata) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}
