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


// Package search implements the scoring pipeline behind recommendations and
// searches.
//
// A Pipeline runs one request through three stages:
//   - Recall: nearest neighbours from the vector index and/or BM25 matches
//     from the keyword index, fused by reciprocal rank when both are present
//   - Filter: candidates in the request's exclusion set are dropped and counted
//   - Rank: relevance and popularity are blended with weight alpha
//
// Recall asks for K plus a margin so results stay full after filtering.
// Scores are normalized as follows. Vector-only recall uses the cosine
// similarity directly as relevance; keyword and fused scores are min-max
// normalized to [0,1]. Popularity is min-max normalized over the candidates
// that survive filtering, with a constant set mapping to 0.5.
package search
