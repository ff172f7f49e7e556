// Package domain contains the core entities of the digest pipeline and
// their validation rules: digests (one enrichment result per file and
// digester), durable task records, and the read-only file metadata the
// pipeline consumes. Entities carry no persistence or transport concerns.
package domain
