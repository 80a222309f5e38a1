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

// Package validate screens Thai sentence submissions before they reach
// the inference pipeline: token budget, Thai-script ratio, sentence
// count, and a profanity filter. All user-facing messages are bilingual
// (English and Thai).
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Message is a bilingual user-facing message.
type Message struct {
	EN string `json:"en"`
	TH string `json:"th"`
}

// Issue is a single validation error or warning.
type Issue struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// Issue types.
const (
	IssueEmptyInput           = "empty_input"
	IssueTokenLimitExceeded   = "token_limit_exceeded"
	IssueMixedLanguage        = "mixed_language"
	IssueMultipleSentences    = "multiple_sentences"
	IssueInappropriateContent = "inappropriate_content"
)

// TextStats are the metrics computed during validation.
type TextStats struct {
	Characters     int     `json:"characters"`
	Words          int     `json:"words"`
	Tokens         int     `json:"tokens"`
	Sentences      int     `json:"sentences"`
	ThaiPercentage float64 `json:"thai_percentage"`
}

// Result is the outcome of validating one submission. Errors block the
// request; warnings are advisory.
type Result struct {
	Valid    bool      `json:"is_valid"`
	Errors   []Issue   `json:"errors"`
	Warnings []Issue   `json:"warnings"`
	Stats    TextStats `json:"text_stats"`
}

// Summary is the compact form served to the frontend while typing.
type Summary struct {
	Valid           bool    `json:"is_valid"`
	HasWarnings     bool    `json:"has_warnings"`
	TokenCount      int     `json:"token_count"`
	TokenLimit      int     `json:"token_limit"`
	UsagePercentage float64 `json:"usage_percentage"`
	ThaiPercentage  float64 `json:"thai_percentage"`
	SentenceCount   int     `json:"sentence_count"`
}

// Config controls the validator.
type Config struct {
	// MaxTokens caps the estimated token count.
	MaxTokens int

	// MinThaiPercentage is the fraction of non-space characters that
	// must be Thai script, in [0, 1].
	MinThaiPercentage float64

	// ProfanityFilter enables the profanity check.
	ProfanityFilter bool
}

// Validator screens submissions. Safe for concurrent use.
type Validator struct {
	cfg Config
}

// New creates a validator.
func New(cfg Config) (*Validator, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.MinThaiPercentage < 0 || cfg.MinThaiPercentage > 1 {
		return nil, fmt.Errorf("min thai percentage must be in [0, 1], got %g", cfg.MinThaiPercentage)
	}
	return &Validator{cfg: cfg}, nil
}

// Sentence terminators cover both scripts; "ฯ" ends formal Thai prose.
var sentenceEnd = regexp.MustCompile(`[.!?ฯ]+`)

var wordPattern = regexp.MustCompile(`[^\s\x{0020}-\x{002F}\x{003A}-\x{0040}\x{005B}-\x{0060}\x{007B}-\x{007E}\x{0E2F}\x{0E46}\x{0E4F}\x{0E5A}\x{0E5B}]+`)

// Validate runs all checks on text.
func (v *Validator) Validate(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{
			Valid: false,
			Errors: []Issue{{
				Type: IssueEmptyInput,
				Message: Message{
					EN: "Please enter some text.",
					TH: "กรุณาใส่ข้อความ",
				},
			}},
		}
	}

	stats := v.stats(text)
	res := Result{Valid: true, Stats: stats}

	if stats.Tokens > v.cfg.MaxTokens {
		res.Errors = append(res.Errors, Issue{
			Type: IssueTokenLimitExceeded,
			Message: Message{
				EN: fmt.Sprintf("Text is too long (%d tokens). For best learning results, please use one sentence at a time (max %d tokens).", stats.Tokens, v.cfg.MaxTokens),
				TH: fmt.Sprintf("ข้อความยาวเกินไป (%d โทเค็น) เพื่อผลการเรียนรู้ที่ดีที่สุด กรุณาใช้ประโยคเดียวในแต่ละครั้ง (สูงสุด %d โทเค็น)", stats.Tokens, v.cfg.MaxTokens),
			},
		})
	}

	if stats.ThaiPercentage < v.cfg.MinThaiPercentage*100 {
		res.Warnings = append(res.Warnings, Issue{
			Type:    IssueMixedLanguage,
			Message: languageWarning(text),
		})
	}

	if stats.Sentences > 1 {
		res.Warnings = append(res.Warnings, Issue{
			Type: IssueMultipleSentences,
			Message: Message{
				EN: fmt.Sprintf("Notice: %d sentences detected. For accurate tense analysis and clearer explanations, we recommend using one sentence at a time.", stats.Sentences),
				TH: fmt.Sprintf("แจ้งเตือน: พบ %d ประโยค เพื่อการวิเคราะห์ tense ที่แม่นยำและคำอธิบายที่ชัดเจน แนะนำให้ใช้ประโยคเดียวในแต่ละครั้ง", stats.Sentences),
			},
		})
	}

	if v.cfg.ProfanityFilter && containsProfanity(text) {
		res.Errors = append(res.Errors, Issue{
			Type: IssueInappropriateContent,
			Message: Message{
				EN: "Please use appropriate language for best translation results. Our AI models work better with respectful and clear Thai text.",
				TH: "กรุณาใช้ภาษาที่เหมาะสมเพื่อผลลัพธ์การแปลที่ดีที่สุด โมเดล AI ของเราทำงานได้ดีกว่าเมื่อใช้ข้อความภาษาไทยที่สุภาพและชัดเจน",
			},
		})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// Summarize returns the compact frontend form of Validate.
func (v *Validator) Summarize(text string) Summary {
	res := v.Validate(text)
	usage := float64(res.Stats.Tokens) / float64(v.cfg.MaxTokens) * 100
	return Summary{
		Valid:           res.Valid,
		HasWarnings:     len(res.Warnings) > 0,
		TokenCount:      res.Stats.Tokens,
		TokenLimit:      v.cfg.MaxTokens,
		UsagePercentage: usage,
		ThaiPercentage:  res.Stats.ThaiPercentage,
		SentenceCount:   res.Stats.Sentences,
	}
}

func (v *Validator) stats(text string) TextStats {
	var thai, english, total int
	for _, r := range text {
		if r == ' ' {
			continue
		}
		total++
		switch {
		case unicode.In(r, unicode.Thai):
			thai++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			english++
		}
	}

	words := len(wordPattern.FindAllString(text, -1))

	// Token estimate: Thai averages roughly three characters per token,
	// plus one token per space-delimited word.
	tokens := thai/3 + words

	var pct float64
	if total > 0 {
		pct = float64(thai) / float64(total) * 100
	}

	return TextStats{
		Characters:     total,
		Words:          words,
		Tokens:         tokens,
		Sentences:      countSentences(text),
		ThaiPercentage: pct,
	}
}

func countSentences(text string) int {
	parts := sentenceEnd.Split(text, -1)
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}

func languageWarning(text string) Message {
	var thai, english int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Thai):
			thai++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			english++
		}
	}
	if english > thai {
		return Message{
			EN: "Warning: Input appears to be primarily English. For best results, please use Thai text.",
			TH: "คำเตือน: ข้อความที่ป้อนดูเหมือนจะเป็นภาษาอังกฤษเป็นหลัก กรุณาใช้ข้อความภาษาไทยเพื่อผลลัพธ์ที่ดีที่สุด",
		}
	}
	return Message{
		EN: "Warning: Mixed language detected. For optimal performance, use primarily Thai text.",
		TH: "คำเตือน: พบภาษาผสม กรุณาใช้ข้อความภาษาไทยเป็นหลักเพื่อประสิทธิภาพที่ดีที่สุด",
	}
}
