// Package spectrogram converts a mono waveform into the fixed-size magnitude
// spectrogram tensor consumed by the command classifier.
//
// Input is truncated or zero-padded to exactly one second, transformed with a
// short-time Fourier transform (frame length 255, step 128, FFT length 256,
// periodic Hann window) and returned with shape (1, T, 129, 1).
package spectrogram
