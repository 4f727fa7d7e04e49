// Package cache stores completed episodes for the length of a listening
// session. A bounded memory tier sits in front of an optional zstd
// compressed disk tier that lives in a per-session temp directory.
package cache
