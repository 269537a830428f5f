// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a failure that may succeed when retried
	// (timeouts, rate limits, provider unavailable).
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent marks a failure that retrying will not fix
	// (invalid input, authentication, content filter).
	ErrPermanent = errors.New("permanent provider error")

	// ErrUnsupportedExtraction is returned for extraction types a provider
	// does not implement.
	ErrUnsupportedExtraction = errors.New("unsupported extraction type")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid ai config")
)

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether err is worth retrying. Unmarked errors are
// permanent unless they are deadline or timeout errors.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanent):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
