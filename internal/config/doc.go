// Package config handles configuration loading for engine-bridge.
//
// # Configuration File
//
// The path is chosen in this order:
//
//  1. The --config flag
//  2. The ENGINE_BRIDGE_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/engine-bridge/bridge.yaml (~/.config when unset)
//
// A missing file at the default location is not an error: every field has a
// default. Files ending in .toml are parsed as TOML, anything else as YAML.
// `engine-bridge init` writes an annotated default file.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${ENGINE_BRIDGE_JWT_SECRET}"
//
// Unset variables expand to the empty string, which then takes the default.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  connect_timeout: "10s"
//	  command_timeout: "30s"
//	ollama:
//	  probe_ttl: "60s"
//
// # Sections
//
//	server:   http_addr, cors_origins
//	engine:   default_url, connect_timeout, command_timeout, handshake.{enabled,protocol}
//	ollama:   base_url, default_model, request_timeout, probe_timeout, probe_ttl, requests_per_second
//	history:  capacity, status_tail, database_path, persist_queue
//	catalog:  docs_dir
//	auth:     jwt_secret
//	logging:  level (debug|info|warn|error), format (text|json)
package config
