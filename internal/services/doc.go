// Package services defines shared utilities consumed by the reconciliation
// loops and the daemon integrations.
//
// Key responsibilities:
//   - Context helpers that stamp agreement IDs, daemon names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so transport, decode and
//     daemon failures can be told apart with errors.Is.
//
// Use these helpers when wiring new integration code so error handling and
// observability stay uniform across the facade.
package services
