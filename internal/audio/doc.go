// Package audio plays narration segments on the system audio device using
// oto/v3, decoding MP3 with beep. It keeps one segment active at a time and
// reports natural completion through a callback.
package audio
