// Package store defines the persistence interfaces consumed by the digest
// coordinator and task worker, together with the sentinel errors all
// implementations return. Concrete implementations live in
// internal/platform/postgres.
package store
