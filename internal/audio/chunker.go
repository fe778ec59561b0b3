package audio

import "fmt"

// ChunkSize returns the number of samples in a chunk of stepSeconds at sampleRate.
// The product is truncated, not rounded.
func ChunkSize(stepSeconds float64, sampleRate int) int {
	return int(stepSeconds * float64(sampleRate))
}

// ChunkCount returns how many whole chunks of size fit into n samples
func ChunkCount(n, size int) int {
	if size <= 0 {
		return 0
	}
	return n / size
}

// SplitChunks slices w into contiguous, non-overlapping chunks of size samples.
// The trailing remainder shorter than one chunk is dropped; its length is
// returned as dropped. Chunks share memory with w and must be treated as read-only.
func SplitChunks(w Waveform, size int) (chunks []Waveform, dropped int, err error) {
	if size <= 0 {
		return nil, 0, fmt.Errorf("chunk size must be positive, got %d", size)
	}

	count := ChunkCount(len(w), size)
	chunks = make([]Waveform, count)
	for i := 0; i < count; i++ {
		chunks[i] = w[i*size : (i+1)*size : (i+1)*size]
	}

	return chunks, len(w) - count*size, nil
}
