package media

import (
	"bytes"
	"fmt"

	"github.com/alxayo/rtmp-publish/internal/errors"
)

// startCode is the Annex-B NAL start-code prefix.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// preludeWindow bounds the scan used to locate the SPS/PPS start codes inside
// the first keyframe buffer, per the publisher's framing contract.
const preludeWindow = 40

// VideoConfig is derived once, from the first keyframe's SPS/PPS prelude, and
// is session-scoped thereafter.
type VideoConfig struct {
	SPS []byte
	PPS []byte
}

// ParseAnnexBPrelude extracts SPS and PPS from the first video buffer, which
// the capture source delivers as [SC|SPS][SC|PPS][SC|IDR]. It scans bytes
// 4..min(40,len) for the second and third start codes: the prefix before the
// second start code (minus the leading start code) is SPS; the bytes between
// the second and third start codes (or the end of the scanned prelude, if no
// third start code is found within the window) are PPS.
func ParseAnnexBPrelude(buf []byte) (sps, pps []byte, err error) {
	if len(buf) < 4 || !bytes.Equal(buf[0:4], startCode) {
		return nil, nil, errors.NewMediaError("h264.prelude", fmt.Errorf("missing leading start code"))
	}
	window := len(buf)
	if window > preludeWindow {
		window = preludeWindow
	}

	secondIdx := indexStartCode(buf[4:window], 4)
	if secondIdx < 0 {
		return nil, nil, errors.NewMediaError("h264.prelude", fmt.Errorf("second start code not found within %d bytes", preludeWindow))
	}
	sps = buf[4:secondIdx]
	if err := validateNalType(sps, 7, "SPS"); err != nil {
		return nil, nil, err
	}

	ppsStart := secondIdx + 4
	thirdIdx := indexStartCode(buf[ppsStart:window], ppsStart)
	ppsEnd := thirdIdx
	if thirdIdx < 0 {
		// No third start code within the scan window; PPS runs to the end of
		// the prelude buffer supplied to us.
		ppsEnd = len(buf)
	}
	pps = buf[ppsStart:ppsEnd]
	if err := validateNalType(pps, 8, "PPS"); err != nil {
		return nil, nil, err
	}
	return sps, pps, nil
}

// indexStartCode finds the next start-code occurrence in buf and returns its
// absolute offset (buf is assumed to start at absolute position base).
func indexStartCode(buf []byte, base int) int {
	idx := bytes.Index(buf, startCode)
	if idx < 0 {
		return -1
	}
	return base + idx
}

func validateNalType(nal []byte, want byte, label string) error {
	if len(nal) == 0 {
		return errors.NewMediaError("h264.prelude", errMissingSpsPps)
	}
	if nal[0]&0x1F != want {
		return errors.NewMediaError("h264.prelude", fmt.Errorf("%s: unexpected nal type %d", label, nal[0]&0x1F))
	}
	return nil
}

// StripKeyframePrefix removes the 3*(00 00 00 01) + SPS + PPS prefix the
// capture source prepends to every keyframe buffer, leaving only the IDR NAL
// unit (without its own start code).
func StripKeyframePrefix(buf []byte, spsLen, ppsLen int) ([]byte, error) {
	prefix := 12 + spsLen + ppsLen
	if len(buf) < prefix {
		return nil, errors.NewMediaError("h264.strip_keyframe", fmt.Errorf("buffer shorter than keyframe prefix: %d < %d", len(buf), prefix))
	}
	return buf[prefix:], nil
}

// StripNALPrefix removes the leading 4-byte Annex-B start code from a
// non-keyframe buffer, leaving a single NAL unit.
func StripNALPrefix(buf []byte) ([]byte, error) {
	if len(buf) < 4 || !bytes.Equal(buf[0:4], startCode) {
		return nil, errors.NewMediaError("h264.strip_nal", fmt.Errorf("missing leading start code"))
	}
	return buf[4:], nil
}

// BuildAVCDecoderConfigurationRecord packs the AVCC sequence header per the
// layout in the publisher spec:
//
//	configurationVersion=1(1) | AVCProfileIndication=sps[1](1) |
//	profile_compatibility=sps[2](1) | AVCLevelIndication=sps[3](1) |
//	reserved(6=0b111111)|lengthSizeMinusOne=3(2) |
//	reserved(3=0b111)|numSPS(5)=1 | spsLen(2) | sps[] |
//	numPPS(1)=1 | ppsLen(2) | pps[]
func BuildAVCDecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, errors.NewMediaError("h264.build_avcc", fmt.Errorf("sps too short: %d bytes", len(sps)))
	}
	if len(pps) == 0 {
		return nil, errors.NewMediaError("h264.build_avcc", errMissingSpsPps)
	}
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		0x01,     // configurationVersion
		sps[1],   // AVCProfileIndication
		sps[2],   // profile_compatibility
		sps[3],   // AVCLevelIndication
		0xFF,     // reserved(6)=111111 | lengthSizeMinusOne(2)=11 (4 bytes)
		0xE1,     // reserved(3)=111 | numSPS(5)=00001
	)
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01) // numPPS
	out = append(out, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out, nil
}

// ParseAVCDecoderConfigurationRecord is the inverse of
// BuildAVCDecoderConfigurationRecord, used by round-trip tests to confirm
// SPS and PPS survive an encode/decode cycle byte-for-byte.
func ParseAVCDecoderConfigurationRecord(b []byte) (sps, pps []byte, err error) {
	if len(b) < 8 {
		return nil, nil, errors.NewMediaError("h264.parse_avcc", fmt.Errorf("record too short: %d bytes", len(b)))
	}
	spsLen := int(b[6])<<8 | int(b[7])
	off := 8
	if len(b) < off+spsLen+3 {
		return nil, nil, errors.NewMediaError("h264.parse_avcc", fmt.Errorf("record truncated reading sps"))
	}
	sps = b[off : off+spsLen]
	off += spsLen
	off++ // numPPS byte
	ppsLen := int(b[off])<<8 | int(b[off+1])
	off += 2
	if len(b) < off+ppsLen {
		return nil, nil, errors.NewMediaError("h264.parse_avcc", fmt.Errorf("record truncated reading pps"))
	}
	pps = b[off : off+ppsLen]
	return sps, pps, nil
}

var errMissingSpsPps = fmt.Errorf("missing SPS/PPS")

// ErrMissingSpsPps is returned (wrapped in a MediaError) when a video frame
// arrives before SPS/PPS have been established for the session.
var ErrMissingSpsPps = errMissingSpsPps
