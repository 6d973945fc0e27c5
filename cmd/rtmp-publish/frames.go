package main

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameKindAudio/frameKindVideo tag each record in the frame file this
// binary reads: a simple length-prefixed container around the same
// (buffer, timestampUs, isKey) tuple the capture source contract in
// SPEC_FULL.md §8 describes, since the publisher has no camera/encoder of
// its own to drive it from.
const (
	frameKindAudio byte = 0
	frameKindVideo byte = 1
)

// capturedFrame is one record read from a frame file:
//
//	kind(1) | isKey(1) | timestampUs(8, big-endian) | length(4, big-endian) | payload
type capturedFrame struct {
	kind        byte
	isKey       bool
	timestampUs int64
	payload     []byte
}

// readFrame reads the next capturedFrame from r, returning io.EOF when the
// file is exhausted cleanly between records.
func readFrame(r io.Reader) (*capturedFrame, error) {
	var hdr [14]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	kind := hdr[0]
	if kind != frameKindAudio && kind != frameKindVideo {
		return nil, fmt.Errorf("frames: unknown frame kind %d", kind)
	}
	isKey := hdr[1] != 0
	ts := int64(binary.BigEndian.Uint64(hdr[2:10]))
	length := binary.BigEndian.Uint32(hdr[10:14])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("frames: read payload: %w", err)
	}

	return &capturedFrame{kind: kind, isKey: isKey, timestampUs: ts, payload: payload}, nil
}
