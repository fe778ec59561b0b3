// Package capture provides audio sources for the energy gate: a WAV file
// replayed in fixed windows and a UDP listener for networked microphones.
// Every source blocks for the requested duration and returns mono float
// samples in [-1, 1].
package capture
