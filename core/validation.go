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

package core

import (
	"fmt"
)

// Complete applies the field-completion policy to a record:
// an absent content field is filled from the title.
// It returns the result of ValidateRecord afterwards.
func Complete(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.Content == nil && record.Title != nil {
		title := *record.Title
		record.Content = &title
	}
	return ValidateRecord(record)
}

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - Content must be present and non-empty
//   - Permalink must be present and non-empty
//   - Index must not be negative
//
// NOT validated:
//   - Title (optional once content is present)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.Index < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrNegativeIndex)
	}

	if record.Content == nil || *record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingContent)
	}

	if record.Permalink == nil || *record.Permalink == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingPermalink)
	}

	return nil
}
