package session

import (
	"time"

	rerrors "github.com/alxayo/rtmp-publish/internal/errors"
	"github.com/alxayo/rtmp-publish/internal/rtmp/amf"
	"github.com/alxayo/rtmp-publish/internal/rtmp/control"
)

// drainPollTimeout bounds how long drainOnce blocks waiting for inbound
// traffic before giving up and letting Run post the next outbound frame.
// The session is not expecting a steady stream of replies once publishing,
// so this is short rather than the connect-phase command timeout.
const drainPollTimeout = 5 * time.Millisecond

// drainOnce performs a single non-blocking-ish pass over the inbound
// socket during steady-state streaming: it applies a short read deadline,
// reads at most one message, and returns nil immediately (without error) if
// nothing arrived in time. This is how the publisher spec's redesign note
// about acknowledging Window Ack Size gets satisfied on the client side —
// the reference client this package is modeled on never read anything back
// after publish began, so window-size acknowledgements and peer status
// pushes (onStatus NetStream.Publish.Start/BadName delivered late, or a
// mid-stream disconnect notice) were silently dropped.
func (s *Session) drainOnce() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(drainPollTimeout)); err != nil {
		return err
	}
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	msg, err := s.reader.ReadMessage()
	if err != nil {
		if rerrors.IsTimeout(err) {
			return nil
		}
		return err
	}

	s.bytesReadSinceAck += msg.MessageLength
	if s.windowAckSize > 0 && s.bytesReadSinceAck >= s.windowAckSize {
		if err := s.writer.WriteMessage(control.EncodeAcknowledgement(s.bytesReadSinceAck)); err != nil {
			return err
		}
		s.bytesReadSinceAck = 0
	}

	if msg.TypeID >= control.TypeSetChunkSize && msg.TypeID <= control.TypeSetPeerBandwidth && msg.MessageStreamID == 0 {
		return control.Handle(s.controlContext(), msg)
	}

	if msg.TypeID == commandMessageTypeID {
		return s.handleInboundCommand(msg.Payload)
	}

	return nil
}

// handleInboundCommand inspects an AMF0 command message received mid-stream
// for a rejection or disconnect status (onStatus NetStream.Publish.BadName,
// NetConnection.Connect.Rejected or NetStream.Unpublish.Success, or a bare
// _error), surfacing it as a fatal
// PublishRejected error so the publisher goroutine can stop cleanly instead
// of continuing to push frames at a server that has already hung up.
func (s *Session) handleInboundCommand(payload []byte) error {
	args, err := amf.DecodeAll(payload)
	if err != nil || len(args) == 0 {
		return nil
	}
	name, ok := args[0].(string)
	if !ok {
		return nil
	}
	switch name {
	case "_error":
		return rerrors.NewPublishError(rerrors.KindPublishRejected, describeStatus(args, "remote rejected command"), nil)
	case "onStatus":
		code, ok := statusCode(args)
		if !ok {
			return nil
		}
		switch code {
		case "NetStream.Publish.BadName", "NetConnection.Connect.Rejected", "NetStream.Unpublish.Success":
			return rerrors.NewPublishError(rerrors.KindPublishRejected, code, nil)
		}
	}
	return nil
}
