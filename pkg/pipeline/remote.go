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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Remote stages call the hosted model endpoints over HTTP JSON. Each
// stage POSTs its input and decodes a flat JSON response. Transient
// upstream failures (429, 5xx) are retried with exponential backoff,
// honoring Retry-After when present.

// StageClient is the shared HTTP plumbing for the three remote stages.
type StageClient struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewStageClient creates a client for one stage endpoint.
func NewStageClient(endpoint string, timeout time.Duration, maxRetries int) (*StageClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("stage endpoint is required")
	}
	return &StageClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
	}, nil
}

func (c *StageClient) post(ctx context.Context, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode stage request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.delay(attempt, lastErr)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build stage request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = &upstreamError{status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header)}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			continue
		}

		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("stage endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode stage response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("stage endpoint unavailable after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *StageClient) delay(attempt int, lastErr error) time.Duration {
	if ue, ok := lastErr.(*upstreamError); ok && ue.retryAfter > 0 {
		return ue.retryAfter
	}
	return c.baseDelay * time.Duration(1<<(attempt-1))
}

type upstreamError struct {
	status     int
	retryAfter time.Duration
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseRetryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// RemoteTranslator calls the translation model endpoint.
type RemoteTranslator struct {
	client *StageClient
}

// NewRemoteTranslator creates the translation stage client.
func NewRemoteTranslator(c *StageClient) *RemoteTranslator {
	return &RemoteTranslator{client: c}
}

func (t *RemoteTranslator) Translate(ctx context.Context, thaiText string) (string, error) {
	var out struct {
		Translation string `json:"translation"`
	}
	err := t.client.post(ctx, map[string]string{"thai_text": thaiText}, &out)
	if err != nil {
		return "", err
	}
	if out.Translation == "" {
		return "", fmt.Errorf("translation endpoint returned an empty result")
	}
	return out.Translation, nil
}

// RemoteClassifier calls the tense classification endpoint.
type RemoteClassifier struct {
	client *StageClient
}

// NewRemoteClassifier creates the classification stage client.
func NewRemoteClassifier(c *StageClient) *RemoteClassifier {
	return &RemoteClassifier{client: c}
}

func (r *RemoteClassifier) Classify(ctx context.Context, englishText string) (Classification, error) {
	var out Classification
	err := r.client.post(ctx, map[string]string{"text": englishText}, &out)
	if err != nil {
		return Classification{}, err
	}
	if out.Coarse == "" {
		return Classification{}, fmt.Errorf("classification endpoint returned no label")
	}
	return out, nil
}

// RemoteExplainer calls the grammar explanation endpoint.
type RemoteExplainer struct {
	client *StageClient
}

// NewRemoteExplainer creates the explanation stage client.
func NewRemoteExplainer(c *StageClient) *RemoteExplainer {
	return &RemoteExplainer{client: c}
}

func (r *RemoteExplainer) Explain(ctx context.Context, res *Result) (string, error) {
	var out struct {
		Explanation string `json:"explanation"`
	}
	err := r.client.post(ctx, map[string]string{
		"translation":  res.Translation,
		"coarse_label": res.CoarseLabel,
		"fine_label":   res.FineLabel,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Explanation == "" {
		return "", fmt.Errorf("explanation endpoint returned an empty result")
	}
	return out.Explanation, nil
}

var (
	_ Translator = (*RemoteTranslator)(nil)
	_ Classifier = (*RemoteClassifier)(nil)
	_ Explainer  = (*RemoteExplainer)(nil)
)
