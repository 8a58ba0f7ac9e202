// Package models defines the domain types shared by the scanner, synthesizer, stores and upload engine.
//
// The package contains two categories of types:
//
// 1. Ephemeral values rebuilt on every scan
//   - [Candidate] : a recorded session pairing a media file with its sidecar
//   - [UploadMetadata] : the record handed to the uploader for one attempt
//
// 2. Enumerations and journal records
//   - [Visibility] : private, unlisted or public
//   - [Outcome] : classification of a single uploader invocation
//   - [AttemptState] : per-candidate upload state machine
//   - [AttemptRecord], [RunRecord] : rows of the optional sqlite journal
package models
