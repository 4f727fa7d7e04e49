// Package podcast plays narrated episodes while their segments are still
// being generated. It consults the episode cache, consumes the segment
// stream, plays segments strictly in index order, buffers across gaps and
// advances through a playlist. All state changes are published as Session
// snapshots.
package podcast
