package chunk

// Message represents a fully reassembled RTMP message (post-dechunking).
// Field naming follows the chunking contract; exported so callers above this
// package (session, control) can inspect values directly.
type Message struct {
	CSID            uint32
	Timestamp       uint32
	MessageLength   uint32
	TypeID          uint8
	MessageStreamID uint32
	Payload         []byte
}
