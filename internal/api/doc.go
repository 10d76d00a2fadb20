// Package api defines wire-format types and converters shared by the HTTP
// API, the IPC layer and the CLI.
//
// DTOs use camelCase JSON tags. Decimal amounts travel as strings so that
// prices and rewards survive the trip without float rounding. Timestamps use
// RFC3339 with milliseconds in UTC.
package api
