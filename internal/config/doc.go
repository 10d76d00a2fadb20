// Package config loads, normalizes, and validates facade configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// YAGNA_APPKEY. The Config type centralizes every knob the daemon and CLI
// need: daemon endpoints, the payment network, grace periods and the
// reconnect/backoff timings of the reconciliation loops.
package config
