package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string) (string, error) {
	return "", errors.New("model endpoint down")
}

type failingExplainer struct{}

func (failingExplainer) Explain(context.Context, *Result) (string, error) {
	return "", errors.New("generation timed out")
}

type captureRecorder struct {
	samples []Sample
	err     error
}

func (r *captureRecorder) Record(_ context.Context, s Sample) error {
	r.samples = append(r.samples, s)
	return r.err
}

func collect(t *testing.T, o *Orchestrator, text string) ([]Event, *Result) {
	t.Helper()
	var events []Event
	res := o.Run(context.Background(), text, func(ev Event) {
		events = append(events, ev)
	})
	return events, res
}

func checkStreamShape(t *testing.T, events []Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}

	first := events[0]
	if first.Stage != 0 || first.Progress != 0 || first.Complete {
		t.Fatalf("first event must be the stage-0 opener, got %+v", first)
	}

	terminals := 0
	lastStage, lastProgress := -1, -1
	for i, ev := range events {
		if ev.Stage < lastStage {
			t.Fatalf("event %d: stage regressed %d -> %d", i, lastStage, ev.Stage)
		}
		if ev.Progress < lastProgress {
			t.Fatalf("event %d: progress regressed %d -> %d", i, lastProgress, ev.Progress)
		}
		lastStage, lastProgress = ev.Stage, ev.Progress
		if ev.Complete {
			terminals++
		}
		if ev.Progress == 100 && !ev.Complete {
			t.Fatalf("event %d: progress reached 100 before the terminal event", i)
		}
	}
	if terminals != 1 {
		t.Fatalf("got %d terminal events, want exactly 1", terminals)
	}

	last := events[len(events)-1]
	if !last.Complete || last.Progress != 100 || last.Result == nil {
		t.Fatalf("last event is not a proper terminal event: %+v", last)
	}
}

func TestRunHappyPath(t *testing.T) {
	o, err := New(MockTranslator{}, MockClassifier{}, MockExplainer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, res := collect(t, o, "ฉันกินข้าวเช้าทุกวัน")
	checkStreamShape(t, events)

	if !res.Success || res.FailedStage != "" {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Translation != "I eat breakfast every day." {
		t.Fatalf("Translation = %q", res.Translation)
	}
	if res.CoarseLabel != "PRESENT" || res.FineLabel != "HABIT" {
		t.Fatalf("labels = %s/%s, want PRESENT/HABIT", res.CoarseLabel, res.FineLabel)
	}
	if !strings.Contains(res.Explanation, "[SECTION 1: Context Cues]") {
		t.Fatalf("explanation missing section markers: %q", res.Explanation)
	}

	for _, stage := range []string{StageTranslation, StageClassification, StageExplanation} {
		if _, ok := res.StageMillis[stage]; !ok {
			t.Fatalf("missing timing for %s", stage)
		}
	}

	terminal := events[len(events)-1]
	if len(terminal.Sections) != 3 {
		t.Fatalf("terminal event has %d sections, want 3", len(terminal.Sections))
	}
}

func TestTranslationFailureDegradesButTerminates(t *testing.T) {
	o, err := New(failingTranslator{}, MockClassifier{}, MockExplainer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, res := collect(t, o, "ฉันกินข้าวเช้าทุกวัน")
	checkStreamShape(t, events)

	if res.Success {
		t.Fatal("expected degraded result")
	}
	if res.FailedStage != StageTranslation {
		t.Fatalf("FailedStage = %q, want %q", res.FailedStage, StageTranslation)
	}
	if res.Translation != "Translation service unavailable" {
		t.Fatalf("Translation = %q", res.Translation)
	}
	if res.CoarseLabel != "UNKNOWN" || res.FineLabel != "UNKNOWN" {
		t.Fatalf("labels = %s/%s, want UNKNOWN/UNKNOWN", res.CoarseLabel, res.FineLabel)
	}
	if !strings.Contains(res.Explanation, "Explanation service unavailable") {
		t.Fatalf("Explanation = %q", res.Explanation)
	}

	// Stages that never ran leave no timing behind.
	if _, ok := res.StageMillis[StageClassification]; ok {
		t.Fatal("classification should not have run")
	}
	if _, ok := res.StageMillis[StageExplanation]; ok {
		t.Fatal("explanation should not have run")
	}
}

func TestExplanationFailureKeepsLabels(t *testing.T) {
	o, err := New(MockTranslator{}, MockClassifier{}, failingExplainer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, res := collect(t, o, "เมื่อวานฉันไปตลาด")
	checkStreamShape(t, events)

	if res.FailedStage != StageExplanation {
		t.Fatalf("FailedStage = %q, want %q", res.FailedStage, StageExplanation)
	}
	if res.CoarseLabel != "PAST" {
		t.Fatalf("CoarseLabel = %q, want PAST", res.CoarseLabel)
	}
	if !strings.Contains(res.Explanation, "Explanation generation failed") {
		t.Fatalf("Explanation = %q", res.Explanation)
	}
}

func TestRecorderReceivesSample(t *testing.T) {
	rec := &captureRecorder{}
	o, err := New(failingTranslator{}, MockClassifier{}, MockExplainer{}, WithRecorder(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	collect(t, o, "ทดสอบ")

	if len(rec.samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(rec.samples))
	}
	s := rec.samples[0]
	if s.Success {
		t.Fatal("sample should record the failure")
	}
	if s.FailedStage != StageTranslation {
		t.Fatalf("FailedStage = %q, want %q", s.FailedStage, StageTranslation)
	}
	if s.InputLength != 5 {
		t.Fatalf("InputLength = %d, want 5 runes", s.InputLength)
	}
}

func TestRecorderFailureDoesNotAffectStream(t *testing.T) {
	rec := &captureRecorder{err: errors.New("database is locked")}
	o, err := New(MockTranslator{}, MockClassifier{}, MockExplainer{}, WithRecorder(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, res := collect(t, o, "ฉันกินข้าวเช้าทุกวัน")
	checkStreamShape(t, events)
	if !res.Success {
		t.Fatal("recorder failure must not degrade the result")
	}
}

func TestParseExplanation(t *testing.T) {
	text := "[SECTION 1: Context Cues]\nfirst body\n\n[SECTION 2: Tense Decision]\nsecond body"
	sections := ParseExplanation(text)

	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections["section_1"].Title != "Context Cues" || sections["section_1"].Content != "first body" {
		t.Fatalf("section_1 = %+v", sections["section_1"])
	}
	if sections["section_2"].Title != "Tense Decision" || sections["section_2"].Content != "second body" {
		t.Fatalf("section_2 = %+v", sections["section_2"])
	}
}

func TestParseExplanationWithoutMarkers(t *testing.T) {
	sections := ParseExplanation("plain text, no markers")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections["section_1"].Title != "Explanation" {
		t.Fatalf("section_1 = %+v", sections["section_1"])
	}
}
