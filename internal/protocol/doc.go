// Package protocol implements the binary packet format used by networked
// microphones to stream audio to a listener over UDP.
// A stream is a Start packet announcing the audio format, a run of Audio
// packets carrying sequenced PCM16LE samples, and an End packet.
package protocol
