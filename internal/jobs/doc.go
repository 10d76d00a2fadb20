// Package jobs holds the Job aggregate and the Registry that reconciles
// activity and payment updates into it.
//
// A Job is keyed by agreement id. Its status is derived from activity state
// pairs and agreement termination; its reward is computed from the agreement
// price and the usage counters with the same decimal rounding the provider
// daemon applies to invoices. The Registry is the only owner of Job values:
// the activity and invoice loops submit updates by agreement id and receive
// snapshots back. Every update method is idempotent and independent of the
// order in which the two loops deliver facts about the same agreement.
package jobs
