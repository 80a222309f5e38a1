// Copyright 2025 The Tenselens Authors
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

package pipeline

import (
	"regexp"
	"strings"
)

// Section is one titled slice of a grammar explanation.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var sectionHeader = regexp.MustCompile(`\[SECTION (\d+): ([^\]]+)\]`)

// ParseExplanation splits explanation text on "[SECTION n: Title]"
// markers into a section_n keyed map. Text with no markers becomes a
// single section titled "Explanation".
func ParseExplanation(text string) map[string]Section {
	sections := make(map[string]Section)

	headers := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	for i, m := range headers {
		num := text[m[2]:m[3]]
		title := strings.TrimSpace(text[m[4]:m[5]])

		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		content := strings.TrimSpace(text[m[1]:end])

		sections["section_"+num] = Section{Title: title, Content: content}
	}

	if len(sections) == 0 {
		sections["section_1"] = Section{
			Title:   "Explanation",
			Content: strings.TrimSpace(text),
		}
	}
	return sections
}
