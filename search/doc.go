// Copyright 2025 Poiesic Systems
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


// Package search ranks a user's ready memories against a query.
//
// The Engine offers three retrieval modes:
//   - Semantic: cosine similarity between the query vector and stored chunk
//     vectors; a memory scores as its best chunk
//   - Keyword: stop-word filtered query terms matched against title, summary
//     and extracted text, weighted by where they hit
//   - Hybrid: a weighted blend of the two
//
// Candidates are always selected by owner, status and filters before any
// scoring, so memories that are not ready never appear in results.
package search
