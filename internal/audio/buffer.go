package audio

import (
	"fmt"
	"sync"
)

// Buffer accumulates PCM-16 little-endian packets of one stream in sequence order,
// tracking reordering and packet loss. It backs networked capture.
type Buffer struct {
	streamID   uint32
	sampleRate int

	// Audio data storage
	rawAudioData []byte

	// Sequence tracking
	started      bool
	lastSeq      uint32
	expectedSeq  uint32
	rawSeqBuffer map[uint32][]byte

	// Packet loss tracking
	lostPackets map[uint32]bool
	maxGap      uint32 // maximum sequence gap to wait for

	totalPackets uint32
	lostCount    uint32

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	StreamID     uint32  `json:"stream_id"`
	SampleRate   int     `json:"sample_rate"`
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LossRate     float64 `json:"loss_rate"`
	BufferSize   int     `json:"buffer_size_samples"`
	PendingSeqs  int     `json:"pending_sequences"`
	LastSequence uint32  `json:"last_sequence"`
}

// NewBuffer creates a reassembly buffer for one stream
func NewBuffer(streamID uint32, sampleRate int) *Buffer {
	return &Buffer{
		streamID:     streamID,
		sampleRate:   sampleRate,
		rawAudioData: make([]byte, 0, sampleRate*4), // 2 seconds of 16-bit samples
		rawSeqBuffer: make(map[uint32][]byte),
		lostPackets:  make(map[uint32]bool),
		maxGap:       20,
	}
}

// AddAudioData adds a packet of PCM-16 bytes with its sequence number
func (b *Buffer) AddAudioData(sequence uint32, rawData []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(rawData)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(rawData))
	}

	b.totalPackets++

	return b.addRawBytesWithSequence(sequence, rawData)
}

// markMissingAsLost marks a range of sequence numbers as lost
func (b *Buffer) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := b.rawSeqBuffer[seq]; !buffered {
			b.lostPackets[seq] = true
			b.lostCount++
		}
	}
}

// cleanupOldLostPackets drops loss tracking older than the last 100 packets
func (b *Buffer) cleanupOldLostPackets() {
	if b.lastSeq < 100 {
		return
	}
	cutoff := b.lastSeq - 100
	for seq := range b.lostPackets {
		if seq < cutoff {
			delete(b.lostPackets, seq)
		}
	}
}

func (b *Buffer) addRawBytesWithSequence(sequence uint32, rawData []byte) error {
	if !b.started {
		b.started = true
		b.expectedSeq = sequence
		b.lastSeq = sequence - 1
	}

	switch {
	case sequence == b.expectedSeq:
		b.rawAudioData = append(b.rawAudioData, rawData...)
		b.lastSeq = sequence
		b.expectedSeq = sequence + 1
		b.processBufferedRawPackets()

	case sequence > b.expectedSeq:
		b.rawSeqBuffer[sequence] = append([]byte(nil), rawData...)

		// Give up on the missing packets once the gap is too large
		if sequence-b.expectedSeq > b.maxGap {
			b.markMissingAsLost(b.expectedSeq, sequence-1)
			b.expectedSeq = sequence
			b.processBufferedRawPackets()
		}

	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, b.lastSeq)
	}

	b.cleanupOldLostPackets()

	return nil
}

// processBufferedRawPackets appends any consecutive buffered packets
func (b *Buffer) processBufferedRawPackets() {
	for {
		rawData, exists := b.rawSeqBuffer[b.expectedSeq]
		if !exists {
			break
		}

		b.rawAudioData = append(b.rawAudioData, rawData...)
		delete(b.rawSeqBuffer, b.expectedSeq)
		delete(b.lostPackets, b.expectedSeq)

		b.lastSeq = b.expectedSeq
		b.expectedSeq++
	}
}

// Drain returns the in-order audio and empties the buffer.
// Sequence state is kept so the stream can continue.
func (b *Buffer) Drain() Waveform {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := decodePCM16LE(b.rawAudioData)
	b.rawAudioData = b.rawAudioData[:0]

	return samples
}

func decodePCM16LE(raw []byte) Waveform {
	n := len(raw) / 2
	out := make(Waveform, n)
	for i := 0; i < n; i++ {
		out[i] = float64(int16(raw[i*2]) | int16(raw[i*2+1])<<8)
	}
	return out
}

// EncodePCM16LE serializes a 16-bit scaled waveform as little-endian bytes
func EncodePCM16LE(w Waveform) []byte {
	samples := w.PCM16()
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets) * 100
	}

	return BufferStats{
		StreamID:     b.streamID,
		SampleRate:   b.sampleRate,
		TotalPackets: b.totalPackets,
		LostPackets:  b.lostCount,
		LossRate:     lossRate,
		BufferSize:   len(b.rawAudioData) / 2,
		PendingSeqs:  len(b.rawSeqBuffer),
		LastSequence: b.lastSeq,
	}
}
