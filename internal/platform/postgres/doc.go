// Package postgres implements the store interfaces against PostgreSQL.
// All implementations accept a store.DBTX so they work over either a bare
// connection or a transaction, and map driver errors to the store
// package's sentinel errors.
package postgres
