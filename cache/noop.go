// SPDX-License-Identifier: GPL-3.0-or-later
package cache

import (
	"context"
	"time"

	"github.com/mailkit/gmailsweep/domain"
)

// Noop is the stand-in cache used when redis is unavailable. Reads
// always miss, writes and evictions do nothing.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, domain.ErrCacheMiss
}

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (Noop) DeletePattern(ctx context.Context, pattern string) error {
	return nil
}
