package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// Packet types
	PacketTypeStart = 0x01
	PacketTypeAudio = 0x02
	PacketTypeEnd   = 0x03

	// Sample encodings
	EncodingPCM16LE = 0x01 // 16-bit signed little-endian PCM

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	StartPayloadSize       = 37 // 4 + 1 + 32 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)

	// DeviceIDSize is the fixed width of the device name in a start packet
	DeviceIDSize = 32

	// MaxPacketSize is the largest packet the 16-bit length field can describe
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Encoding:1]
type Header struct {
	PacketType uint8  // 0x01=Start, 0x02=Audio, 0x03=End
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Unique stream identifier
	Encoding   uint8  // 0x01=PCM16LE
}

// StartPayload announces a stream and its audio format
// Layout: [SampleRate:4][Channels:1][DeviceID:32]
type StartPayload struct {
	SampleRate uint32
	Channels   uint8
	DeviceID   [DeviceIDSize]byte // Null-terminated string
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32 // Packet sequence number
	AudioData []byte // PCM audio data (variable length)
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header *Header
	Start  *StartPayload // Only set for start packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Encoding:   data[7],
	}

	return header, nil
}

// ParseStartPayload parses the 37-byte start packet payload
func ParseStartPayload(data []byte) (*StartPayload, error) {
	if len(data) < StartPayloadSize {
		return nil, fmt.Errorf("start payload too short: expected %d bytes, got %d",
			StartPayloadSize, len(data))
	}

	payload := &StartPayload{
		SampleRate: binary.BigEndian.Uint32(data[0:4]),
		Channels:   data[4],
	}
	copy(payload.DeviceID[:], data[5:5+DeviceIDSize])

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	// Copy audio data (remaining bytes after sequence)
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Validate packet length matches actual data
	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeStart:
		payload, err := ParseStartPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start payload: %w", err)
		}
		packet.Start = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeEnd:
		// no payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if !IsValidEncoding(header.Encoding) {
		return fmt.Errorf("invalid encoding: 0x%02x", header.Encoding)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeStart:
		if payloadSize != StartPayloadSize {
			return fmt.Errorf("start packet payload size mismatch: expected %d, got %d",
				StartPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
		if (payloadSize-AudioPayloadHeaderSize)%2 != 0 {
			return fmt.Errorf("audio packet data length %d is not a whole number of PCM16 samples",
				payloadSize-AudioPayloadHeaderSize)
		}
	case PacketTypeEnd:
		if payloadSize != 0 {
			return fmt.Errorf("end packet must have no payload, got %d bytes", payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeStart || ptype == PacketTypeAudio || ptype == PacketTypeEnd
}

// IsValidEncoding checks if the sample encoding is supported
func IsValidEncoding(enc uint8) bool {
	return enc == EncodingPCM16LE
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetDeviceID extracts the device ID as a string
func (s *StartPayload) GetDeviceID() string {
	return ExtractString(s.DeviceID[:])
}

// appendHeader writes a header for a packet carrying payloadSize bytes
func appendHeader(dst []byte, packetType uint8, streamID uint32, payloadSize int) ([]byte, error) {
	total := HeaderSize + payloadSize
	if total > MaxPacketSize {
		return nil, fmt.Errorf("packet too large: %d bytes (maximum %d)", total, MaxPacketSize)
	}

	dst = append(dst, packetType)
	dst = binary.BigEndian.AppendUint16(dst, uint16(total))
	dst = binary.BigEndian.AppendUint32(dst, streamID)
	dst = append(dst, EncodingPCM16LE)
	return dst, nil
}

// EncodeStart builds a start packet. Device IDs longer than 31 bytes are truncated.
func EncodeStart(streamID uint32, sampleRate uint32, channels uint8, deviceID string) ([]byte, error) {
	buf := make([]byte, 0, HeaderSize+StartPayloadSize)
	buf, err := appendHeader(buf, PacketTypeStart, streamID, StartPayloadSize)
	if err != nil {
		return nil, err
	}

	buf = binary.BigEndian.AppendUint32(buf, sampleRate)
	buf = append(buf, channels)

	var id [DeviceIDSize]byte
	copy(id[:DeviceIDSize-1], deviceID)
	buf = append(buf, id[:]...)

	return buf, nil
}

// EncodeAudio builds an audio packet around PCM16LE data
func EncodeAudio(streamID, sequence uint32, pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio data length %d is not a whole number of PCM16 samples", len(pcm))
	}

	payloadSize := AudioPayloadHeaderSize + len(pcm)
	buf := make([]byte, 0, HeaderSize+payloadSize)
	buf, err := appendHeader(buf, PacketTypeAudio, streamID, payloadSize)
	if err != nil {
		return nil, err
	}

	buf = binary.BigEndian.AppendUint32(buf, sequence)
	return append(buf, pcm...), nil
}

// EncodeEnd builds an end-of-stream packet
func EncodeEnd(streamID uint32) []byte {
	buf, _ := appendHeader(make([]byte, 0, HeaderSize), PacketTypeEnd, streamID, 0)
	return buf
}

// MaxAudioDataSize is the largest PCM payload that fits in one audio packet
func MaxAudioDataSize() int {
	n := MaxPacketSize - HeaderSize - AudioPayloadHeaderSize
	return n - n%2
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType, encoding string

	switch h.PacketType {
	case PacketTypeStart:
		packetType = "Start"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeEnd:
		packetType = "End"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	switch h.Encoding {
	case EncodingPCM16LE:
		encoding = "PCM16LE"
	default:
		encoding = fmt.Sprintf("Unknown(0x%02x)", h.Encoding)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Encoding:%s}",
		packetType, h.PacketLen, h.StreamID, encoding)
}

// String returns a human-readable representation of the start payload
func (s *StartPayload) String() string {
	return fmt.Sprintf("StartPayload{SampleRate:%d, Channels:%d, DeviceID:%q}",
		s.SampleRate, s.Channels, s.GetDeviceID())
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
