// Package config loads the process-wide configuration snapshot used to
// start the broker.
//
// # Loading order
//
// Load applies three layers, each overriding the one before:
//
//  1. Built-in defaults (Default)
//  2. A YAML file, if a non-empty path is given and it exists
//  3. BROKER_* and ANTHROPIC_* environment variables
//
// Environment variables always win, matching how the session pool's
// operator expects a container deployment to behave: the YAML file sets
// the shape of a deployment, env vars patch individual values without a
// rebuild.
//
// # Path discovery
//
// Callers resolve the config file path themselves, in order: an
// explicit --config flag, then ./broker.yaml in the working directory,
// then DefaultConfigPath() ($XDG_CONFIG_HOME/agentbroker/config.yaml).
// Load does not search for the file itself — it trusts the path it is
// given and treats a missing file as "use defaults, then env".
//
// # Storage backend selection
//
// The storage key selects the Metadata Store implementation: memory,
// sqlite (requires sqlite_path), or postgresql (requires
// postgres.database). Validate should be called once credentials and
// caps need checking, separately from Load, since a caller may want to
// load configuration before committing to spawning subprocesses.
package config
