/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package collection

import (
	"fmt"
	"regexp"

	"cartonclub/internal/domain"
)

const DefaultName = "New Deck"

var defaultNamePattern = regexp.MustCompile(`^New Deck( \(\d+\))?$`)

// NextDefaultName returns "New Deck" for the first default-named collection
// and "New Deck (n)" afterwards, n being one more than the number of
// collections whose name still matches the default pattern.
func NextDefaultName(existing []domain.Collection) string {
	n := 0
	for _, c := range existing {
		if defaultNamePattern.MatchString(c.Name) {
			n++
		}
	}
	if n == 0 {
		return DefaultName
	}
	return fmt.Sprintf("%s (%d)", DefaultName, n+1)
}
