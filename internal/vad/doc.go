// Package vad implements energy-based voice activity gating.
// It computes RMS energy over fixed-duration chunks, decides voice versus silence
// by threshold comparison, and extracts the voice-bearing chunks of a waveform
// into a single segment capped to one second.
package vad
