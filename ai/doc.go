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


// Package ai provides abstractions for the embedding services used by curata.
//
// Item and query text is turned into vectors by an Embedder. The engine
// depends only on this interface, so the embedding backend can be swapped
// without touching indexing or ranking code.
//
// # Implementation Packages
//
//   - ai/openai: any OpenAI-compatible embedding server, via langchaingo
//   - ai/anchor: an offline embedder mapping category names to fixed anchor
//     vectors, used for demo catalogs
//   - ai/mock: test doubles
//
// Public constructors (openai.NewProvider, anchor.NewProvider) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behaviour and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("all-minilm"), ai.WithDimensions(384))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "wireless headphones")
//
// Embeddings are returned as produced by the backend. Callers normalize them
// to unit length before indexing or querying.
package ai
