// Package provider supervises the ya-provider daemon and drives its
// command-line tool for presets, profiles and node configuration.
package provider
