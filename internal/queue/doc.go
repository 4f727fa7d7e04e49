// Package queue holds the segments of the episode being played. Segments
// arrive in any order and are handed out strictly by index.
package queue
