package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/config"
	"github.com/skypro1111/voicegate/internal/protocol"
)

// PacketObserver receives UDP packet statistics. *metrics.Metrics implements it.
type PacketObserver interface {
	RecordPacketReceived()
	RecordPacketProcessed()
	RecordParseError()
	SetQueueSize(size int)
}

// UDPSource captures audio streamed by a networked microphone.
// It follows one stream at a time: a Start packet binds the stream and a
// newer Start packet replaces it.
type UDPSource struct {
	conn       *net.UDPConn
	config     *config.UDPConfig
	sampleRate int
	logger     *slog.Logger
	observer   PacketObserver
	wait       func(ctx context.Context, d time.Duration)

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetChan chan *incomingPacket

	// Current stream
	streamMu sync.Mutex
	streamID uint32
	deviceID string
	active   bool
	buffer   *audio.Buffer

	// Statistics
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	droppedPackets   uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
}

// NewUDPSource creates a UDP capture source delivering audio at sampleRate
func NewUDPSource(cfg *config.UDPConfig, sampleRate int, logger *slog.Logger, observer PacketObserver) *UDPSource {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPSource{
		config:     cfg,
		sampleRate: sampleRate,
		logger:     logger,
		observer:   observer,
		wait:       sleepContext,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, cfg.QueueSize),
	}
}

// Start begins listening for UDP packets
func (s *UDPSource) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP capture started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("sample_rate", s.sampleRate),
		slog.Int("workers", s.config.Workers),
	)

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the listener. A pending capture returns ErrClosed
// without waiting for the rest of its window, as do later captures.
func (s *UDPSource) Stop() error {
	s.logger.Info("Stopping UDP capture...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP capture stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPSource) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Capture discards audio received so far, waits durationSeconds and returns
// what arrived in the meantime, zero-padded or truncated to the exact length.
func (s *UDPSource) Capture(durationSeconds float64, sampleRate int) (audio.Waveform, error) {
	if sampleRate != s.sampleRate {
		return nil, fmt.Errorf("%w: source is %d Hz, capture asked for %d Hz", ErrSampleRate, s.sampleRate, sampleRate)
	}

	n, err := SampleCount(durationSeconds, sampleRate)
	if err != nil {
		return nil, err
	}

	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	s.drain()
	s.wait(s.ctx, time.Duration(durationSeconds*float64(time.Second)))

	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	received := s.drain()
	if len(received) < n {
		s.logger.Debug("Capture window underrun",
			slog.Int("expected_samples", n),
			slog.Int("received_samples", len(received)),
		)
	}

	return received.Normalize16().Truncate(n).PadTo(n), nil
}

// sleepContext sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// drain empties the current stream buffer and returns its 16-bit samples
func (s *UDPSource) drain() audio.Waveform {
	s.streamMu.Lock()
	buffer := s.buffer
	s.streamMu.Unlock()

	if buffer == nil {
		return audio.Waveform{}
	}
	return buffer.Drain()
}

// receiveLoop is the main packet receiving loop
func (s *UDPSource) receiveLoop() {
	defer s.wg.Done()
	defer close(s.packetChan)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.RecordPacketReceived()
		}

		// Copy the packet, the read buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		select {
		case s.packetChan <- &incomingPacket{data: packetData, remoteAddr: remoteAddr}:
		default:
			s.mu.Lock()
			s.droppedPackets++
			s.mu.Unlock()
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}

		if s.observer != nil {
			s.observer.SetQueueSize(len(s.packetChan))
		}
	}
}

// packetProcessor processes packets from the packet channel
func (s *UDPSource) packetProcessor(workerID int) {
	defer s.wg.Done()

	for packet := range s.packetChan {
		s.handlePacket(packet.data, packet.remoteAddr.String(), workerID)
	}
}

// handlePacket processes a single incoming packet
func (s *UDPSource) handlePacket(data []byte, remote string, workerID int) {
	parsed, err := protocol.ParsePacket(data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.RecordParseError()
		}

		s.logger.Error("Failed to parse packet",
			slog.String("remote_addr", remote),
			slog.Int("packet_size", len(data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.RecordPacketProcessed()
	}

	switch parsed.Header.PacketType {
	case protocol.PacketTypeStart:
		s.processStartPacket(parsed.Header, parsed.Start)
	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsed.Header, parsed.Audio)
	case protocol.PacketTypeEnd:
		s.processEndPacket(parsed.Header)
	}
}

// processStartPacket binds the announced stream when its format matches
func (s *UDPSource) processStartPacket(header *protocol.Header, payload *protocol.StartPayload) {
	if int(payload.SampleRate) != s.sampleRate || payload.Channels != 1 {
		s.logger.Warn("Rejecting stream with unsupported format",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sample_rate", uint64(payload.SampleRate)),
			slog.Int("channels", int(payload.Channels)),
			slog.Int("expected_sample_rate", s.sampleRate),
		)
		return
	}

	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if s.active && s.streamID == header.StreamID {
		return
	}

	s.streamID = header.StreamID
	s.deviceID = payload.GetDeviceID()
	s.active = true
	s.buffer = audio.NewBuffer(header.StreamID, s.sampleRate)

	s.logger.Info("Microphone stream started",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("device_id", s.deviceID),
	)
}

// processAudioPacket adds audio of the bound stream to its buffer
func (s *UDPSource) processAudioPacket(header *protocol.Header, payload *protocol.AudioPayload) {
	s.streamMu.Lock()
	buffer := s.buffer
	known := s.active && s.streamID == header.StreamID
	s.streamMu.Unlock()

	if !known {
		s.logger.Debug("Received audio packet for unknown stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
		)
		return
	}

	if err := buffer.AddAudioData(payload.Sequence, payload.AudioData); err != nil {
		s.logger.Debug("Failed to add audio data",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
		)
	}
}

// processEndPacket stops accepting audio for the bound stream.
// Audio already buffered is still returned by the next capture.
func (s *UDPSource) processEndPacket(header *protocol.Header) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if !s.active || s.streamID != header.StreamID {
		return
	}
	s.active = false

	stats := s.buffer.GetStats()
	s.logger.Info("Microphone stream ended",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("device_id", s.deviceID),
		slog.Uint64("total_packets", uint64(stats.TotalPackets)),
		slog.Uint64("lost_packets", uint64(stats.LostPackets)),
	)
}

// GetStatistics returns current listener statistics
func (s *UDPSource) GetStatistics() UDPStatistics {
	s.mu.RLock()
	stats := UDPStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		DroppedPackets:   s.droppedPackets,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
	s.mu.RUnlock()

	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	stats.StreamActive = s.active
	stats.StreamID = s.streamID
	stats.DeviceID = s.deviceID
	if s.buffer != nil {
		bufStats := s.buffer.GetStats()
		stats.Buffer = &bufStats
	}

	return stats
}

// UDPStatistics represents listener performance metrics
type UDPStatistics struct {
	PacketsReceived  uint64             `json:"packets_received"`
	PacketsProcessed uint64             `json:"packets_processed"`
	ParseErrors      uint64             `json:"parse_errors"`
	DroppedPackets   uint64             `json:"dropped_packets"`
	QueueSize        uint64             `json:"queue_size"`
	QueueCapacity    uint64             `json:"queue_capacity"`
	StreamActive     bool               `json:"stream_active"`
	StreamID         uint32             `json:"stream_id"`
	DeviceID         string             `json:"device_id"`
	Buffer           *audio.BufferStats `json:"buffer,omitempty"`
}
