// Package source is the client side of the narration backend: the
// newline-delimited segment stream, the single-line speech endpoint and the
// episode bulk download.
package source
