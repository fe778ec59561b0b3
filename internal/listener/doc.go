// Package listener runs the voice command loop: capture a window of audio,
// extract the voiced chunks, decide whether the window held speech and, when
// it did, classify its spectrogram.
package listener
