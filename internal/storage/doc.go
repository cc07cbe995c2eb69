// Package storage keeps an append-only audit journal of watch events.
//
// The journal is operational history only. The seen-set is never persisted;
// a restart always re-baselines.
package storage
