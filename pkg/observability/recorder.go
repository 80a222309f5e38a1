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

package observability

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenselens/tenselens/pkg/pipeline"
)

const createSamplesSchemaSQL = `
CREATE TABLE IF NOT EXISTS performance_samples (
    id VARCHAR(36) PRIMARY KEY,
    input_length INTEGER NOT NULL,
    translation_ms BIGINT,
    classification_ms BIGINT,
    explanation_ms BIGINT,
    success BOOLEAN NOT NULL,
    failed_stage VARCHAR(32),
    created_at TIMESTAMP NOT NULL
)`

// SQLRecorder persists pipeline performance samples. Writes are
// best-effort by contract: the orchestrator logs and swallows errors.
type SQLRecorder struct {
	db      *sql.DB
	dialect string
}

// NewSQLRecorder creates the recorder and initializes its table.
func NewSQLRecorder(db *sql.DB, dialect string) (*SQLRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	r := &SQLRecorder{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createSamplesSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize samples schema: %w", err)
	}
	return r, nil
}

func (r *SQLRecorder) bind(query string) string {
	if r.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Record writes one sample. Stages that never ran are stored as NULL.
func (r *SQLRecorder) Record(ctx context.Context, s pipeline.Sample) error {
	query := r.bind(`INSERT INTO performance_samples
		(id, input_length, translation_ms, classification_ms, explanation_ms, success, failed_stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		s.InputLength,
		stageMillis(s, pipeline.StageTranslation),
		stageMillis(s, pipeline.StageClassification),
		stageMillis(s, pipeline.StageExplanation),
		s.Success,
		nullIfEmpty(s.FailedStage),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert performance sample: %w", err)
	}
	return nil
}

func stageMillis(s pipeline.Sample, stage string) any {
	if ms, ok := s.StageMillis[stage]; ok {
		return ms
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ pipeline.Recorder = (*SQLRecorder)(nil)
