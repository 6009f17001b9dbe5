// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"errors"
	"fmt"
)

// ErrCacheMiss marks an absent cache entry. Every other cache error
// is treated the same way by callers.
var ErrCacheMiss = errors.New("cache miss")

// RemoteAPIError wraps a transport, auth or quota failure on the
// listing or bulk-mutate endpoints. It is fatal to the enclosing call
// and surfaced to the caller.
type RemoteAPIError struct {
	Op  string
	Err error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote api %s failed: %v", e.Op, e.Err)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// ValidationError marks input rejected before any remote call was
// attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}
