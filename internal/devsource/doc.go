// Package devsource serves the narration endpoints from a directory of
// pre-recorded clips, for development and end-to-end testing without the
// real backend.
//
// Each episode is a subdirectory holding a lines.yaml transcript and one
// MP3 clip per line named <index>-<speaker>.mp3. Records can be emitted
// shuffled, delayed and with injected failures to exercise the player's
// ordering and buffering.
package devsource
