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


// Package ai provides abstractions for the AI services memvault calls out to.
//
// Two capabilities are modelled:
//
//   - Embedder: turns text into vectors for semantic search
//   - Extractor: derives a summary, tags or a transcription from content
//
// AIProvider bundles both so they share configuration and lifecycle.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, Ollama, vLLM) through langchaingo
//   - ai/cache: query embedding cache in front of any Embedder
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. The mock
// constructors return concrete types so tests can inject behaviour and read
// call counters.
//
// # Errors
//
// Providers classify failures with Transient and Permanent. Callers use
// IsTransient to decide whether to retry; unclassified errors are treated as
// permanent except for deadlines and timeouts.
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	result, err := provider.Extractor().Extract(ctx, ai.ExtractionRequest{
//	    Type: core.ExtractionSummary,
//	    Text: "The Eiffel Tower is in Paris.",
//	})
package ai
