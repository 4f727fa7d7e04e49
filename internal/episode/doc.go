// Package episode defines the value types shared by the podcast pipeline:
// narration segments, speakers, episode descriptors and playlists.
package episode
