// Package digest coordinates the per-file enrichment pipeline: a registry
// of named digesters, a selector that finds files still needing work, and
// a coordinator that runs eligible digesters against one file in priority
// order, persisting each result and cascading resets to downstream
// digesters when upstream content changes.
package digest
