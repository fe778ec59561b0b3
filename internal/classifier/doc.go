// Package classifier implements the command classification collaborator.
// A Client sends spectrogram tensors to a remote model over HTTP using
// msgpack, with retry and exponential backoff, and maps the returned scores
// onto the labels of a model folder.
package classifier
