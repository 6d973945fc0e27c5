package media

import (
	"bytes"
	"testing"

	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
)

func sampleAudioConfig() AudioConfig {
	return AudioConfig{SamplingRateHz: 44100, ChannelCount: 2}
}

// TestBuildAudioHeaderPayload_RoundTrips checks that the sequence-header
// payload the muxer sends over the wire is itself a well-formed RTMP audio
// tag: ParseAudioMessage (the inbound-side decoder) must recover the same
// AAC/sequence_header classification a receiving player would derive.
func TestBuildAudioHeaderPayload_RoundTrips(t *testing.T) {
	cfg := sampleAudioConfig()
	payload := BuildAudioHeaderPayload(cfg)

	m, err := ParseAudioMessage(payload)
	if err != nil {
		t.Fatalf("ParseAudioMessage: %v", err)
	}
	if m.Codec != AudioCodecAAC {
		t.Fatalf("codec = %s, want AAC", m.Codec)
	}
	if m.PacketType != AACPacketTypeSequenceHeader {
		t.Fatalf("packetType = %s, want sequence_header", m.PacketType)
	}
	if len(m.Payload) != 2 {
		t.Fatalf("AudioSpecificConfig payload length = %d, want 2", len(m.Payload))
	}
}

func TestBuildAudioFramePayload_RoundTrips(t *testing.T) {
	cfg := sampleAudioConfig()
	raw := []byte{0xAA, 0xBB, 0xCC}
	payload := BuildAudioFramePayload(cfg, raw)

	m, err := ParseAudioMessage(payload)
	if err != nil {
		t.Fatalf("ParseAudioMessage: %v", err)
	}
	if m.PacketType != AACPacketTypeRaw {
		t.Fatalf("packetType = %s, want raw", m.PacketType)
	}
	if !bytes.Equal(m.Payload, raw) {
		t.Fatalf("payload = %x, want %x", m.Payload, raw)
	}
}

func TestBuildVideoHeaderPayload_RoundTrips(t *testing.T) {
	cfg := VideoConfig{SPS: []byte{0x67, 0x42, 0xC0, 0x1F}, PPS: []byte{0x68, 0xCE, 0x38, 0x80}}
	payload, err := BuildVideoHeaderPayload(cfg)
	if err != nil {
		t.Fatalf("BuildVideoHeaderPayload: %v", err)
	}

	m, err := ParseVideoMessage(payload)
	if err != nil {
		t.Fatalf("ParseVideoMessage: %v", err)
	}
	if m.Codec != VideoCodecAVC {
		t.Fatalf("codec = %s, want AVC", m.Codec)
	}
	if m.PacketType != AVCPacketTypeSequenceHeader {
		t.Fatalf("packetType = %s, want sequence_header", m.PacketType)
	}
	if m.FrameType != VideoFrameTypeKey {
		t.Fatalf("frameType = %s, want keyframe", m.FrameType)
	}
}

func TestBuildVideoFramePayload_RoundTrips(t *testing.T) {
	nal := []byte{0x65, 0x01, 0x02, 0x03}

	keyPayload := BuildVideoFramePayload(nal, true, 0)
	m, err := ParseVideoMessage(keyPayload)
	if err != nil {
		t.Fatalf("ParseVideoMessage (key): %v", err)
	}
	if m.FrameType != VideoFrameTypeKey || m.PacketType != AVCPacketTypeNALU {
		t.Fatalf("unexpected key metadata: %+v", m)
	}
	// ParseVideoMessage keeps everything after AVCPacketType:
	// CompositionTime(3) | u32 BE length | NAL bytes.
	wantKey := append([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, byte(len(nal))}, nal...)
	if !bytes.Equal(m.Payload, wantKey) {
		t.Fatalf("key payload = %x, want %x", m.Payload, wantKey)
	}

	interPayload := BuildVideoFramePayload(nal, false, 0)
	m, err = ParseVideoMessage(interPayload)
	if err != nil {
		t.Fatalf("ParseVideoMessage (inter): %v", err)
	}
	if m.FrameType != VideoFrameTypeInter {
		t.Fatalf("frameType = %s, want inter", m.FrameType)
	}
}

// TestMuxer_FirstAudioFrameEmitsHeaderThenData exercises HandleAudioFrame's
// "first call yields two frames" contract end to end: both emitted payloads
// must themselves parse as valid RTMP audio tags.
func TestMuxer_FirstAudioFrameEmitsHeaderThenData(t *testing.T) {
	mux := NewMuxer()
	adts := buildTestADTSFrame(10)

	frames, err := mux.HandleAudioFrame(adts, 0)
	if err != nil {
		t.Fatalf("HandleAudioFrame: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (header + data)", len(frames))
	}
	for i, f := range frames {
		if f.Kind != queue.FrameAudio {
			t.Fatalf("frame %d kind = %v, want FrameAudio", i, f.Kind)
		}
		if _, err := ParseAudioMessage(f.Payload); err != nil {
			t.Fatalf("frame %d payload does not parse as an audio tag: %v", i, err)
		}
	}
	if _, err := ParseAudioMessage(frames[0].Payload); err == nil {
		m, _ := ParseAudioMessage(frames[0].Payload)
		if m.PacketType != AACPacketTypeSequenceHeader {
			t.Fatalf("first frame packetType = %s, want sequence_header", m.PacketType)
		}
	}
}

func buildTestADTSFrame(payloadLen int) []byte {
	total := 7 + payloadLen
	frame := make([]byte, total)
	frame[0] = 0xFF
	frame[1] = 0xF1
	frame[2] = 0x4C
	frame[3] = 0x80 | byte((total>>11)&0x03)
	frame[4] = byte((total >> 3) & 0xFF)
	frame[5] = byte((total&0x07)<<5) | 0x1F
	frame[6] = 0xFC
	for i := 0; i < payloadLen; i++ {
		frame[7+i] = byte(i)
	}
	return frame
}
