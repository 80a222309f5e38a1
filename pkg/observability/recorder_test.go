package observability

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tenselens/tenselens/pkg/pipeline"
)

func TestSQLRecorderStoresSample(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	rec, err := NewSQLRecorder(db, "sqlite")
	if err != nil {
		t.Fatalf("NewSQLRecorder: %v", err)
	}

	err = rec.Record(context.Background(), pipeline.Sample{
		InputLength: 16,
		StageMillis: map[string]int64{
			pipeline.StageTranslation: 120,
			// classification and explanation never ran
		},
		Success:     false,
		FailedStage: pipeline.StageClassification,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var (
		inputLength      int
		translationMS    sql.NullInt64
		classificationMS sql.NullInt64
		failedStage      sql.NullString
		success          bool
	)
	row := db.QueryRow(`SELECT input_length, translation_ms, classification_ms, failed_stage, success
		FROM performance_samples`)
	if err := row.Scan(&inputLength, &translationMS, &classificationMS, &failedStage, &success); err != nil {
		t.Fatalf("scan sample: %v", err)
	}

	if inputLength != 16 {
		t.Fatalf("input_length = %d, want 16", inputLength)
	}
	if !translationMS.Valid || translationMS.Int64 != 120 {
		t.Fatalf("translation_ms = %+v, want 120", translationMS)
	}
	if classificationMS.Valid {
		t.Fatal("classification_ms should be NULL for a stage that never ran")
	}
	if !failedStage.Valid || failedStage.String != pipeline.StageClassification {
		t.Fatalf("failed_stage = %+v", failedStage)
	}
	if success {
		t.Fatal("success should be false")
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := InitMetrics(false)
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	// Must not panic with nil instruments.
	ctx := context.Background()
	m.RecordAdmission(ctx, false, "global_limit")
	m.RecordStage(ctx, pipeline.StageTranslation, 0.2)
	m.RecordPipelineRun(ctx, true, "")
	m.RecordLogin(ctx)
}
