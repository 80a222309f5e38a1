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
	"context"
	"strings"
)

// Mock stages stand in for the real model endpoints during local
// development and tests. They mirror the behavior of the hosted models
// on a small fixed lexicon.

// MockTranslator translates a few known Thai sentences and falls back
// to a default for everything else.
type MockTranslator struct{}

var mockTranslations = map[string]string{
	"ฉันกินข้าวเช้าทุกวัน": "I eat breakfast every day.",
	"เมื่อวานฉันไปตลาด":    "Yesterday I went to the market.",
	"พรุ่งนี้ฉันจะไปเรียน":  "Tomorrow I will go to study.",
}

func (MockTranslator) Translate(_ context.Context, thaiText string) (string, error) {
	if t, ok := mockTranslations[strings.TrimSpace(thaiText)]; ok {
		return t, nil
	}
	return "I eat rice.", nil
}

// MockClassifier labels tense from English keywords.
type MockClassifier struct{}

func (MockClassifier) Classify(_ context.Context, englishText string) (Classification, error) {
	lower := strings.ToLower(englishText)
	switch {
	case strings.Contains(lower, "will") || strings.Contains(lower, "tomorrow"):
		return Classification{Coarse: "FUTURE", Fine: "SIMPLE", FineCode: "future_simple", Confidence: 0.92}, nil
	case strings.Contains(lower, "yesterday") || strings.Contains(lower, "went"):
		return Classification{Coarse: "PAST", Fine: "SIMPLE", FineCode: "past_simple", Confidence: 0.94}, nil
	case strings.Contains(lower, "every day"):
		return Classification{Coarse: "PRESENT", Fine: "HABIT", FineCode: "present_habit", Confidence: 0.9}, nil
	default:
		return Classification{
			Coarse:   "PRESENT",
			Fine:     "SIMPLE",
			FineCode: "present_simple",
			// No keyword matched, so the pick is less certain.
			Confidence:   0.75,
			Alternatives: []Alternative{{FineLabel: "HABIT", Confidence: 0.15}},
		}, nil
	}
}

// MockExplainer emits a canned sectioned explanation per tense.
type MockExplainer struct{}

func (MockExplainer) Explain(_ context.Context, res *Result) (string, error) {
	switch {
	case res.CoarseLabel == "PRESENT" && res.FineLabel == "HABIT":
		return `[SECTION 1: Context Cues]
The phrase "every day" (ทุกวัน) is a clear temporal marker indicating habitual action. This type of time expression signals that the action happens regularly or repeatedly.

[SECTION 2: Tense Decision]
The combination of the habitual marker "every day" with the action verb leads to Present Simple tense in English. This tense is used for routines, habits, and repeated actions.

[SECTION 3: Grammar Tips]
In English, habitual actions use Present Simple: Subject + base verb (+ s/es for 3rd person singular). Thai doesn't mark tense on verbs, so English tense must be inferred from context clues like ทุกวัน (every day).`, nil

	case res.CoarseLabel == "PAST":
		return `[SECTION 1: Context Cues]
The word "yesterday" (เมื่อวาน) is a definite past time marker. This clearly indicates the action happened in the past.

[SECTION 2: Tense Decision]
With a specific past time reference, English requires Past Simple tense. The verb changes to its past form.

[SECTION 3: Grammar Tips]
Past Simple in English: Subject + past verb form. Regular verbs add -ed, while irregular verbs have special forms (go→went, eat→ate).`, nil

	case res.CoarseLabel == "FUTURE":
		return `[SECTION 1: Context Cues]
The word "tomorrow" (พรุ่งนี้) indicates future time. The Thai particle จะ also marks future intention.

[SECTION 2: Tense Decision]
Future time markers require future tense in English, typically using "will" + base verb.

[SECTION 3: Grammar Tips]
Future Simple in English: Subject + will + base verb. Thai จะ often corresponds to English "will".`, nil

	default:
		return `[SECTION 1: Context Cues]
No specific time markers found in the sentence.

[SECTION 2: Tense Decision]
Without time markers, Present Simple is used as the default tense.

[SECTION 3: Grammar Tips]
When translating from Thai without time markers, consider the context to determine the appropriate English tense.`, nil
	}
}

var (
	_ Translator = MockTranslator{}
	_ Classifier = MockClassifier{}
	_ Explainer  = MockExplainer{}
)
