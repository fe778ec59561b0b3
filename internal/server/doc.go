// Package server implements the HTTP API: RMS analysis, spectrogram and
// classification of uploaded WAV audio, plus health, configuration,
// statistics and Prometheus endpoints.
package server
