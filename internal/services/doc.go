// Package services implements everything an upload run talks to outside the process.
//
// # Uploader
//
// [CommandUploader] drives the youtubeuploader binary. Metadata is written to a temporary
// JSON document passed with -metaJSON; the combined output of a failed run becomes the
// diagnostic text handed to a [Classifier].
//
// # Classification
//
// [SubstringClassifier] maps exit status and diagnostic text to an outcome, checking
// quota patterns before auth patterns before validation patterns.
//
// # Playlists
//
// Two backends satisfy [store.PlaylistService]:
//   - [YouTubePlaylists] calls the Data API v3 using the uploader's client secrets and
//     token cache. Refreshed tokens are written back to the cache.
//   - [CommandPlaylists] runs the uploader with "-filename -" and parses "playlist ID:".
//
// # Notifications
//
// [DiscordNotifier] posts rate limited embeds to a webhook. Delivery failures are the
// caller's to log; they never affect a run.
//
// # Credential renewal
//
// [CredentialWatcher] blocks until the token cache file changes, using fsnotify events
// with a polling fallback.
//
// # Errors
//
// Remote failures wrap sentinels from the shared package:
//   - [shared.ErrQuotaExceeded] : platform quota exhausted
//   - [shared.ErrAuthExpired] : token revoked or refresh failed
//   - [shared.ErrNotAuthenticated] : token cache missing
//   - [shared.ErrAPIRequest] : any other remote failure
package services
