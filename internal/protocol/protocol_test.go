package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected *Header
		errorMsg string
	}{
		{
			name: "valid start header",
			data: []byte{
				0x01,       // PacketType: Start
				0x00, 0x2D, // PacketLen: 45 (8 + 37)
				0x00, 0x00, 0x30, 0x39, // StreamID: 12345
				0x01, // Encoding: PCM16LE
			},
			expected: &Header{
				PacketType: PacketTypeStart,
				PacketLen:  45,
				StreamID:   12345,
				Encoding:   EncodingPCM16LE,
			},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x02,       // PacketType: Audio
				0x01, 0x00, // PacketLen: 256
				0x12, 0x34, 0x56, 0x78, // StreamID: 305419896
				0x01,
			},
			expected: &Header{
				PacketType: PacketTypeAudio,
				PacketLen:  256,
				StreamID:   305419896,
				Encoding:   EncodingPCM16LE,
			},
		},
		{
			name:     "header too short",
			data:     []byte{0x01, 0x00},
			errorMsg: "header too short",
		},
		{
			name:     "empty data",
			data:     []byte{},
			errorMsg: "header too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseStartPayload(t *testing.T) {
	data := make([]byte, StartPayloadSize)
	binary.BigEndian.PutUint32(data[0:], 16000)
	data[4] = 1
	copy(data[5:], "kitchen-mic")

	payload, err := ParseStartPayload(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), payload.SampleRate)
	assert.Equal(t, uint8(1), payload.Channels)
	assert.Equal(t, "kitchen-mic", payload.GetDeviceID())

	_, err = ParseStartPayload(data[:10])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start payload too short")
}

func TestParseAudioPayload(t *testing.T) {
	audioData := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	data := make([]byte, 4+len(audioData))
	binary.BigEndian.PutUint32(data[0:], 12345)
	copy(data[4:], audioData)

	tests := []struct {
		name     string
		data     []byte
		sequence uint32
		audio    []byte
		errorMsg string
	}{
		{name: "valid audio payload with data", data: data, sequence: 12345, audio: audioData},
		{name: "audio payload with sequence only", data: []byte{0x00, 0x00, 0x00, 0x01}, sequence: 1},
		{name: "payload too short", data: []byte{0x00, 0x00}, errorMsg: "audio payload too short"},
		{name: "empty payload", data: []byte{}, errorMsg: "audio payload too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAudioPayload(tt.data)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sequence, result.Sequence)
			assert.Equal(t, tt.audio, result.AudioData)
		})
	}
}

func TestParseAudioPayloadCopiesData(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0xAA, 0xBB}
	result, err := ParseAudioPayload(data)
	require.NoError(t, err)

	data[4] = 0
	assert.Equal(t, byte(0xAA), result.AudioData[0])
}

func TestEncodeParseRoundTrip(t *testing.T) {
	start, err := EncodeStart(7, 16000, 1, "desk")
	require.NoError(t, err)
	require.Len(t, start, HeaderSize+StartPayloadSize)

	packet, err := ParsePacket(start)
	require.NoError(t, err)
	assert.Equal(t, uint8(PacketTypeStart), packet.Header.PacketType)
	assert.Equal(t, uint32(7), packet.Header.StreamID)
	require.NotNil(t, packet.Start)
	assert.Equal(t, "desk", packet.Start.GetDeviceID())
	assert.Nil(t, packet.Audio)

	pcm := []byte{0x10, 0x00, 0xF0, 0xFF}
	audio, err := EncodeAudio(7, 42, pcm)
	require.NoError(t, err)

	packet, err = ParsePacket(audio)
	require.NoError(t, err)
	require.NotNil(t, packet.Audio)
	assert.Equal(t, uint32(42), packet.Audio.Sequence)
	assert.Equal(t, pcm, packet.Audio.AudioData)
	assert.Nil(t, packet.Start)

	packet, err = ParsePacket(EncodeEnd(7))
	require.NoError(t, err)
	assert.Equal(t, uint8(PacketTypeEnd), packet.Header.PacketType)
	assert.Nil(t, packet.Start)
	assert.Nil(t, packet.Audio)
}

func TestEncodeStartTruncatesDeviceID(t *testing.T) {
	long := "a-device-name-that-is-well-over-thirty-two-bytes"
	data, err := EncodeStart(1, 16000, 1, long)
	require.NoError(t, err)

	packet, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, long[:DeviceIDSize-1], packet.Start.GetDeviceID())
}

func TestEncodeAudioErrors(t *testing.T) {
	_, err := EncodeAudio(1, 0, []byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a whole number")

	_, err = EncodeAudio(1, 0, make([]byte, MaxAudioDataSize()+2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packet too large")

	_, err = EncodeAudio(1, 0, make([]byte, MaxAudioDataSize()))
	assert.NoError(t, err)
}

func TestParsePacketErrors(t *testing.T) {
	audio, err := EncodeAudio(1, 0, []byte{0x01, 0x02})
	require.NoError(t, err)

	badType := append([]byte(nil), audio...)
	badType[0] = 0x99

	mismatch := append([]byte(nil), audio...)
	binary.BigEndian.PutUint16(mismatch[1:3], 100)

	badEncoding := append([]byte(nil), audio...)
	badEncoding[7] = 0x07

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "packet too short", data: []byte{0x01, 0x00}, errorMsg: "packet too short"},
		{name: "invalid packet type", data: badType, errorMsg: "invalid packet type"},
		{name: "packet length mismatch", data: mismatch, errorMsg: "packet length mismatch"},
		{name: "invalid encoding", data: badEncoding, errorMsg: "invalid encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   *Header
		errorMsg string
	}{
		{
			name:   "valid start header",
			header: &Header{PacketType: PacketTypeStart, PacketLen: 45, StreamID: 12345, Encoding: EncodingPCM16LE},
		},
		{
			name:   "valid audio header",
			header: &Header{PacketType: PacketTypeAudio, PacketLen: 100, StreamID: 67890, Encoding: EncodingPCM16LE},
		},
		{
			name:   "valid end header",
			header: &Header{PacketType: PacketTypeEnd, PacketLen: HeaderSize, StreamID: 1, Encoding: EncodingPCM16LE},
		},
		{
			name:     "invalid packet type",
			header:   &Header{PacketType: 0x99, PacketLen: 45, StreamID: 12345, Encoding: EncodingPCM16LE},
			errorMsg: "invalid packet type",
		},
		{
			name:     "invalid encoding",
			header:   &Header{PacketType: PacketTypeStart, PacketLen: 45, StreamID: 12345, Encoding: 0x99},
			errorMsg: "invalid encoding",
		},
		{
			name:     "packet length too small",
			header:   &Header{PacketType: PacketTypeStart, PacketLen: 5, StreamID: 12345, Encoding: EncodingPCM16LE},
			errorMsg: "packet length too small",
		},
		{
			name:     "start packet wrong payload size",
			header:   &Header{PacketType: PacketTypeStart, PacketLen: 100, StreamID: 12345, Encoding: EncodingPCM16LE},
			errorMsg: "start packet payload size mismatch",
		},
		{
			name:     "audio packet payload too small",
			header:   &Header{PacketType: PacketTypeAudio, PacketLen: 10, StreamID: 12345, Encoding: EncodingPCM16LE},
			errorMsg: "audio packet payload too small",
		},
		{
			name:     "audio packet odd data length",
			header:   &Header{PacketType: PacketTypeAudio, PacketLen: 15, StreamID: 12345, Encoding: EncodingPCM16LE},
			errorMsg: "not a whole number",
		},
		{
			name:     "end packet with payload",
			header:   &Header{PacketType: PacketTypeEnd, PacketLen: 12, StreamID: 1, Encoding: EncodingPCM16LE},
			errorMsg: "end packet must have no payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExtractString(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{name: "null terminated", input: []byte{'a', 'b', 0, 'c'}, want: "ab"},
		{name: "no terminator", input: []byte("abc"), want: "abc"},
		{name: "empty", input: []byte{0, 0}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractString(tt.input))
		})
	}
}

func TestStringers(t *testing.T) {
	h := &Header{PacketType: PacketTypeAudio, PacketLen: 12, StreamID: 3, Encoding: EncodingPCM16LE}
	assert.Equal(t, "Header{Type:Audio, Len:12, StreamID:3, Encoding:PCM16LE}", h.String())

	h = &Header{PacketType: 0x42, Encoding: 0x09}
	assert.Contains(t, h.String(), "Unknown(0x42)")
	assert.Contains(t, h.String(), "Unknown(0x09)")

	a := &AudioPayload{Sequence: 5, AudioData: make([]byte, 10)}
	assert.Equal(t, "AudioPayload{Sequence:5, AudioDataLen:10}", a.String())
}
