// Package audio holds the waveform primitives shared by the gate and the spectrogram builder.
// It implements sample representations (float and 16-bit scaled), fixed-size chunking,
// WAV decoding/encoding, the decode collaborator, and sequence-ordered PCM reassembly
// for networked capture.
package audio
