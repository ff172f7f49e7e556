// Package config defines the application's configuration structures and
// loading logic. Configuration is sourced from an optional YAML file and
// LIFEDB_-prefixed environment variables, then validated before use.
package config
