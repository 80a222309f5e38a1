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

package validate

import (
	"regexp"
	"strings"
)

// Thai script has no word separators, so Thai terms are matched as
// substrings after first stripping known-legitimate words that would
// otherwise false-positive (e.g. สัดส่วน "proportion" contains สัด).
var thaiProfanity = []string{
	"ควย", "เย็ด", "แม่ง", "สัด", "เหี้ย", "สัส", "เงี่ยน",
	"ชักว่าว", "ควาย", "ไอ้โง่", "อีโง่", "อีดอก", "สถุน",
	"ปัญญาอ่อน", "ตอแหล", "ตายซะ", "ส้นตีน", "ไอ้หมา",
	"กู", "มึง", "พ่อมึง", "แม่มึง", "ไปตาย", "ชิบหาย",
	"หน้าด้าน", "หน้าตัวเมีย",
}

var thaiExceptions = []string{
	"สัดส่วน",       // proportion
	"สัตว์ป่า",      // wild animals
	"สัตว์เลี้ยง",   // pets
	"สัตว์น้ำ",      // aquatic animals
	"การตาย",        // death
	"คนตาย",         // dead person
	"ปัญญาธรรม",     // wisdom
	"ปัญญาไว",       // clever
}

var englishProfanity = regexp.MustCompile(
	`\b(shit|fuck|bitch|asshole|damn|crap|piss|dickhead|bastard|whore|slut|idiot|moron|retard(ed)?)\b`)

func containsProfanity(text string) bool {
	lower := strings.ToLower(text)

	stripped := lower
	for _, exc := range thaiExceptions {
		stripped = strings.ReplaceAll(stripped, exc, "")
	}
	for _, term := range thaiProfanity {
		if strings.Contains(stripped, term) {
			return true
		}
	}

	return englishProfanity.MatchString(lower)
}
