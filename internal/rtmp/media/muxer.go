package media

import (
	"encoding/binary"
	"fmt"

	"github.com/alxayo/rtmp-publish/internal/errors"
	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
)

// AAC sequence-header / frame packet type tags used in the built RTMP audio
// tag payload (distinct from the FLV sound-size bits; see the publisher
// spec's note about not conflating AACPacketType with sample size).
const (
	aacPacketTypeSequenceHeader = 0x00
	aacPacketTypeRaw            = 0x01
)

// AVC sequence-header / NALU packet type tags used in the built RTMP video
// tag payload.
const (
	avcPacketTypeSequenceHeader = 0x00
	avcPacketTypeNALU           = 0x01
)

// videoTsOffsetMs reserves timestamps 0 and 1 for the AVC sequence header so
// the first real video frame never collides with it; a convention of this
// pipeline (carried over from the original capture pipeline, which sent SPS
// and PPS as two separate pseudo-frames at ts=0 and ts=1 before folding them
// into a single AVCDecoderConfigurationRecord header message here).
const videoTsOffsetMs = 2

// BuildAudioHeaderPayload builds the first RTMP audio message payload: the
// AAC sequence header carrying AudioSpecificConfig.
//
//	AudioTagHeader(1) | AACPacketType=0(1) | AudioSpecificConfig(2)
func BuildAudioHeaderPayload(cfg AudioConfig) []byte {
	asc := BuildAudioSpecificConfig(cfg)
	out := make([]byte, 0, 4)
	out = append(out, audioTagHeader(cfg), aacPacketTypeSequenceHeader)
	return append(out, asc...)
}

// BuildAudioFramePayload builds a subsequent RTMP audio message payload
// carrying one AAC access unit (the ADTS payload with its header stripped).
//
//	AudioTagHeader(1) | AACPacketType=1(1) | raw AAC access unit
func BuildAudioFramePayload(cfg AudioConfig, rawAAC []byte) []byte {
	out := make([]byte, 0, 2+len(rawAAC))
	out = append(out, audioTagHeader(cfg), aacPacketTypeRaw)
	return append(out, rawAAC...)
}

// audioTagHeader packs the FLV AudioTagHeader byte:
// (SoundFormat=10<<4) | (SoundRate<<2) | (SoundSize<<1) | SoundType.
// SoundRate is fixed at 3 (44kHz) per common FLV/AAC muxer convention — the
// actual sampling rate travels in AudioSpecificConfig, not this field.
func audioTagHeader(cfg AudioConfig) byte {
	const soundFormatAAC = 10
	const soundRate44k = 3
	soundSize := byte(1) // 16-bit, matches cfg.SampleSizeBits==2
	soundType := byte(0)
	if cfg.ChannelCount > 1 {
		soundType = 1
	}
	return byte(soundFormatAAC<<4) | byte(soundRate44k<<2) | (soundSize << 1) | soundType
}

// BuildVideoHeaderPayload builds the first RTMP video message payload: the
// AVC sequence header carrying the AVCDecoderConfigurationRecord.
//
//	AVCVideoTagHeader(1)=0x17 | AVCPacketType=0(1) | CompositionTime=0(3) | AVCDecoderConfigurationRecord
func BuildVideoHeaderPayload(cfg VideoConfig) ([]byte, error) {
	avcc, err := BuildAVCDecoderConfigurationRecord(cfg.SPS, cfg.PPS)
	if err != nil {
		return nil, err
	}
	out := []byte{0x17, avcPacketTypeSequenceHeader, 0x00, 0x00, 0x00}
	return append(out, avcc...), nil
}

// BuildVideoFramePayload builds a subsequent RTMP video message payload
// carrying one length-prefixed NAL unit.
//
//	AVCVideoTagHeader = 0x17 if key else 0x27 | AVCPacketType=1(1) | CompositionTime(3) | u32BE length | NAL bytes
func BuildVideoFramePayload(nal []byte, isKey bool, compositionTimeMs int32) []byte {
	tagHeader := byte(0x27)
	if isKey {
		tagHeader = 0x17
	}
	out := make([]byte, 0, 9+len(nal))
	out = append(out, tagHeader, avcPacketTypeNALU)
	out = append(out, byte(compositionTimeMs>>16), byte(compositionTimeMs>>8), byte(compositionTimeMs))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(nal)))
	out = append(out, lenBuf[:]...)
	return append(out, nal...)
}

// Muxer accepts raw AAC ADTS frames and H.264 Annex-B NAL units from the
// capture source, derives the session-scoped AudioConfig/VideoConfig on
// first sight, rebases timestamps to a zero-origin millisecond clock, and
// emits ready-to-send RTMP message payloads as queue.MediaFrame values. A
// Muxer is owned exclusively by the component that calls its Handle*
// methods (the StreamController, on the capture caller's goroutine); it is
// not safe for concurrent use by multiple callers.
type Muxer struct {
	audioConfig *AudioConfig
	videoConfig *VideoConfig

	haveAudioStart bool
	audioStartUs   int64
	audioRemUs     int64

	haveVideoStart bool
	videoStartUs   int64
	videoRemUs     int64
}

// NewMuxer returns an empty Muxer ready to receive the first audio/video
// frames of a new streaming session.
func NewMuxer() *Muxer { return &Muxer{} }

// AudioConfig returns the derived audio configuration, or nil if no audio
// frame has been processed yet.
func (m *Muxer) AudioConfig() *AudioConfig { return m.audioConfig }

// VideoConfig returns the derived video configuration, or nil if no keyframe
// has been processed yet.
func (m *Muxer) VideoConfig() *VideoConfig { return m.videoConfig }

// HandleAudioFrame parses one ADTS frame and returns the MediaFrame(s) to
// post to the FrameQueue: on the very first call this is the AAC sequence
// header followed by the first access unit; afterwards, a single frame per
// call. buf is copied before any domain logic runs, honouring the capture
// source's buffer-lifetime contract.
func (m *Muxer) HandleAudioFrame(buf []byte, timestampUs int64) ([]queue.MediaFrame, error) {
	owned := append([]byte(nil), buf...)

	first := m.audioConfig == nil
	if first {
		cfg, frameLength, err := ParseADTSHeader(owned)
		if err != nil {
			return nil, err
		}
		if frameLength > len(owned) {
			return nil, errors.NewMediaError("muxer.audio", fmt.Errorf("adts frame_length %d exceeds buffer %d", frameLength, len(owned)))
		}
		m.audioConfig = &cfg
	}

	ms := m.rebaseAudio(timestampUs)
	rawAAC := StripADTSHeader(owned)

	frames := make([]queue.MediaFrame, 0, 2)
	if first {
		frames = append(frames, queue.MediaFrame{
			Kind:    queue.FrameAudio,
			Payload: BuildAudioHeaderPayload(*m.audioConfig),
			DTS:     ms,
			PTS:     ms,
		})
	}
	frames = append(frames, queue.MediaFrame{
		Kind:    queue.FrameAudio,
		Payload: BuildAudioFramePayload(*m.audioConfig, rawAAC),
		DTS:     ms,
		PTS:     ms,
	})
	return frames, nil
}

// HandleVideoFrame parses one H.264 Annex-B buffer and returns the
// MediaFrame(s) to post to the FrameQueue. The first call MUST carry a
// keyframe (capture delivers [SC|SPS][SC|PPS][SC|IDR]); it yields the AVC
// sequence header followed by the IDR NALU. A video frame arriving before
// SPS/PPS have been established is rejected with MissingSpsPps. buf is
// copied before any domain logic runs.
func (m *Muxer) HandleVideoFrame(buf []byte, timestampUs int64, isKey bool) ([]queue.MediaFrame, error) {
	owned := append([]byte(nil), buf...)

	first := m.videoConfig == nil
	if first {
		if !isKey {
			return nil, errors.NewMediaError("muxer.video", ErrMissingSpsPps)
		}
		sps, pps, err := ParseAnnexBPrelude(owned)
		if err != nil {
			return nil, err
		}
		m.videoConfig = &VideoConfig{SPS: sps, PPS: pps}
	}

	var nal []byte
	var err error
	if isKey {
		nal, err = StripKeyframePrefix(owned, len(m.videoConfig.SPS), len(m.videoConfig.PPS))
	} else {
		nal, err = StripNALPrefix(owned)
	}
	if err != nil {
		return nil, err
	}

	ms := m.rebaseVideo(timestampUs) + videoTsOffsetMs

	frames := make([]queue.MediaFrame, 0, 2)
	if first {
		headerPayload, err := BuildVideoHeaderPayload(*m.videoConfig)
		if err != nil {
			return nil, err
		}
		frames = append(frames, queue.MediaFrame{
			Kind:    queue.FrameVideo,
			Payload: headerPayload,
			DTS:     0,
			PTS:     0,
		})
	}
	frames = append(frames, queue.MediaFrame{
		Kind:    queue.FrameVideo,
		Payload: BuildVideoFramePayload(nal, isKey, 0),
		DTS:     ms,
		PTS:     ms,
	})
	return frames, nil
}

// rebaseAudio and rebaseVideo implement the remainder-carrying microsecond
// -> millisecond rebasing: on the first frame, start is pinned to the
// capture timestamp; every subsequent frame's total elapsed time since
// start is split into whole milliseconds plus a carried remainder, so
// truncation never accumulates drift across the session.
func (m *Muxer) rebaseAudio(timestampUs int64) int64 {
	return rebase(timestampUs, &m.audioStartUs, &m.haveAudioStart, &m.audioRemUs)
}

func (m *Muxer) rebaseVideo(timestampUs int64) int64 {
	return rebase(timestampUs, &m.videoStartUs, &m.haveVideoStart, &m.videoRemUs)
}

func rebase(timestampUs int64, start *int64, haveStart *bool, rem *int64) int64 {
	if !*haveStart {
		*start = timestampUs
		*haveStart = true
	}
	delta := timestampUs - *start
	if delta < 0 {
		delta = 0
	}
	*rem += delta % 1000
	ms := delta / 1000
	if *rem >= 1000 {
		ms++
		*rem -= 1000
	}
	return ms
}
