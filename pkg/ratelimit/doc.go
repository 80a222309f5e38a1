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

// Package ratelimit admits or rejects prediction requests ahead of the
// slow inference pipeline.
//
// The limiter enforces four layered policies per call, in order:
//
//  1. Duplicate suppression: the same request fingerprint from the same
//     identity within the duplicate-cache TTL is rejected.
//  2. Minimum interval: two accepted requests from the same identity must
//     be at least min_interval seconds apart.
//  3. Per-identity window: at most per_identity_requests accepted
//     requests per identity within a sliding window.
//  4. Global window: at most global_requests accepted requests
//     system-wide within a sliding window.
//
// Decisions are returned as values, never as errors: a rejected request
// is expected operation, not a fault. A rejected request consumes no
// budget.
//
// All state lives in process memory under one mutex held for the full
// check (sweep, decide, record), so concurrent requests observe a
// serialized view. Expired entries are swept lazily on every call rather
// than by a background timer; the cost is O(window size) work per call,
// the benefit is no timer goroutine and memory bounded by recent request
// volume. State is not shared across processes: with multiple worker
// processes each enforces its own limits independently.
package ratelimit
