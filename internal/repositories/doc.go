// Package repositories implements the SQLite attempt journal.
//
// The journal is history only: the JSON ledger stays the source of truth for what has
// been uploaded. Every uploader invocation is one [models.AttemptRecord] and every
// orchestration run is one [models.RunRecord].
//
// Key Implementations:
//   - [AttemptRepository] : attempt rows with per-VOD and per-run lookups
//   - [RunRepository] : run summaries, newest first
//   - [JournalAdapter] : feeds both repositories from the upload engine
//
// Attempt rows carry a sequence number from [NextSequence] so listings keep insertion
// order even when timestamps collide.
package repositories
