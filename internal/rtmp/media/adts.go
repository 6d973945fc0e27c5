// Package media parses raw AAC ADTS frames and H.264 Annex-B NAL units from
// a capture source, derives the audio/video sequence headers, and rebases
// timestamps to a zero-origin millisecond clock before handing frames to the
// frame queue.
package media

import (
	"fmt"

	"github.com/alxayo/rtmp-publish/internal/errors"
)

// adtsHeaderLen is the fixed (no-CRC) ADTS header size in bytes.
const adtsHeaderLen = 7

// samplingRates maps an MPEG-4 sampling frequency index to its rate in Hz.
var samplingRates = [13]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// AudioConfig is derived once, from the first ADTS header observed in the
// stream, and is session-scoped thereafter.
type AudioConfig struct {
	AOT               uint8
	SamplingRateIndex uint8
	SamplingRateHz    uint32
	ChannelCount      uint8
	SampleSizeBits    uint8 // fixed at 2 (16-bit) per the capture source's contract
}

// ParseADTSHeader validates the 7-byte fixed ADTS header at the start of
// frame and derives an AudioConfig plus the ADTS frame_length field.
//
//	frame[0]      = 0xFF
//	frame[1]&0xF0 = 0xF0                              -- sync word
//	aot           = ((frame[2]>>6)&0x03) + 1
//	sr_index      = (frame[2]>>2) & 0x0F
//	channels      = ((frame[2]&0x01)<<2) | ((frame[3]>>6)&0x03)
//	frame_length  = ((frame[3]&0x03)<<11) | (frame[4]<<3) | ((frame[5]>>5)&0x07)
func ParseADTSHeader(frame []byte) (AudioConfig, int, error) {
	if len(frame) < adtsHeaderLen {
		return AudioConfig{}, 0, errors.NewMediaError("adts.parse", fmt.Errorf("frame shorter than ADTS header: %d bytes", len(frame)))
	}
	if frame[0] != 0xFF || frame[1]&0xF0 != 0xF0 {
		return AudioConfig{}, 0, errors.NewMediaError("adts.parse", errBadAdtsSync)
	}

	srIndex := (frame[2] >> 2) & 0x0F
	if int(srIndex) >= len(samplingRates) {
		return AudioConfig{}, 0, errors.NewMediaError("adts.parse", errBadSamplingIndex)
	}

	frameLength := (int(frame[3]&0x03) << 11) | (int(frame[4]) << 3) | ((int(frame[5]) >> 5) & 0x07)
	if frameLength < adtsHeaderLen {
		return AudioConfig{}, 0, errors.NewMediaError("adts.parse", errBadAdtsSize)
	}

	cfg := AudioConfig{
		AOT:               ((frame[2] >> 6) & 0x03) + 1,
		SamplingRateIndex: srIndex,
		SamplingRateHz:    samplingRates[srIndex],
		ChannelCount:      ((frame[2] & 0x01) << 2) | ((frame[3] >> 6) & 0x03),
		SampleSizeBits:    2,
	}
	return cfg, frameLength, nil
}

// BuildAudioSpecificConfig packs the 2-byte MPEG-4 AudioSpecificConfig:
// aot(5) | freq_index(4) | channel_config(4) | 000.
func BuildAudioSpecificConfig(cfg AudioConfig) []byte {
	b0 := (cfg.AOT << 3) | ((cfg.SamplingRateIndex >> 1) & 0x01)
	b1 := (cfg.SamplingRateIndex&0x01)<<7 | (cfg.ChannelCount&0x0F)<<3
	return []byte{b0, b1}
}

// ParseAudioSpecificConfig is the inverse of BuildAudioSpecificConfig, used
// by round-trip tests to confirm aot/sampling_rate_index/channel_count
// survive an encode/decode cycle.
func ParseAudioSpecificConfig(asc []byte) (aot uint8, samplingRateIndex uint8, channelCount uint8, err error) {
	if len(asc) < 2 {
		return 0, 0, 0, errors.NewMediaError("adts.parse_asc", fmt.Errorf("AudioSpecificConfig too short: %d bytes", len(asc)))
	}
	aot = asc[0] >> 3
	samplingRateIndex = ((asc[0] & 0x01) << 1) | (asc[1] >> 7)
	channelCount = (asc[1] >> 3) & 0x0F
	return aot, samplingRateIndex, channelCount, nil
}

// StripADTSHeader returns the AAC raw access unit by removing the leading
// fixed-size ADTS header from frame.
func StripADTSHeader(frame []byte) []byte {
	if len(frame) <= adtsHeaderLen {
		return nil
	}
	return frame[adtsHeaderLen:]
}

var (
	errBadAdtsSync      = fmt.Errorf("bad ADTS sync word")
	errBadAdtsSize      = fmt.Errorf("bad ADTS frame_length")
	errBadSamplingIndex = fmt.Errorf("bad ADTS sampling rate index")
)
