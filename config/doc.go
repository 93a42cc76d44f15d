// Package config loads engine configuration from defaults, an optional YAML
// file and CURATA_* environment variables, in increasing precedence.
//
// Example file:
//
//	store:
//	  path: /var/lib/curata/store
//	index:
//	  path: /var/lib/curata/items.idx
//	  dim: 64
//	  compression: zstd
//	ranking:
//	  alpha: 0.7
//	embedding:
//	  provider: openai
//	  host: http://localhost:11434
//	  model: all-minilm
//
// The same keys can be set from the environment, for example
// CURATA_RANKING_ALPHA=0.5 or CURATA_INDEX_EF_SEARCH=80.
package config
