// Package chunker splits long text into overlapping, token-bounded spans
// for search ingestion. Token counting is whitespace-run based rather than
// a real tokenizer: it is deterministic, fast, and close enough for
// sizing embedding inputs.
package chunker
