// SPDX-License-Identifier: GPL-3.0-or-later
package janitor

import "fmt"

type ConfigFunc func(c *configuration) error

func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true

		return nil
	}
}

func MaxResults(maxResults int) ConfigFunc {
	return func(c *configuration) error {
		if maxResults <= 0 {
			return fmt.Errorf("MaxResults must be positive")
		}

		c.MaxResults = maxResults
		return nil
	}
}

// Progress registers a callback invoked after every processed chunk of
// a destructive operation.
func Progress(callback func(operation string, done int, total int)) ConfigFunc {
	return func(c *configuration) error {
		if callback == nil {
			return fmt.Errorf("Progress callback cannot be null")
		}

		c.Progress = callback
		return nil
	}
}

type configuration struct {
	DryRun     bool
	MaxResults int

	Progress func(operation string, done int, total int)
}
