// SPDX-License-Identifier: GPL-3.0-or-later
package analyzer

import (
	"strings"

	"github.com/mailkit/gmailsweep/domain"
)

// Scorer computes the deterministic spam-likelihood heuristic. The
// trusted-domain set is configuration handed in at startup, never
// derived here.
type Scorer struct {
	trusted map[string]bool
}

func NewScorer(trustedDomains []string) *Scorer {
	trusted := map[string]bool{}
	for _, d := range trustedDomains {
		trusted[strings.ToLower(d)] = true
	}
	return &Scorer{trusted: trusted}
}

func (s *Scorer) Trusted(domainName string) bool {
	return s.trusted[strings.ToLower(domainName)]
}

// Score returns a value in [0, 1]. Each condition is evaluated
// independently and the contributions add up; a trusted domain halves
// the accumulated sum before the final clamp.
func (s *Scorer) Score(stats *domain.OriginatorStats) float64 {
	// Records without items are not constructible via aggregation,
	// but a hand-built one must not divide by zero.
	if stats.TotalCount == 0 {
		return 0.0
	}

	score := 0.0

	if stats.Velocity() > 1 {
		score += 0.2
	}

	if stats.IsNewsletter {
		score += 0.3
	}

	if stats.IsAutomated {
		score += 0.2
	}

	if stats.HasUnsubscribe {
		score += 0.2
	}

	if stats.ReadRate() < 0.3 {
		score += 0.3
	}

	if float64(stats.SubjectPatterns["unsubscribe"]) > float64(stats.TotalCount)*0.5 {
		score += 0.2
	}

	if s.Trusted(stats.Domain) {
		score *= 0.5
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
