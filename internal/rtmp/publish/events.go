package publish

// EventKind discriminates the typed events a Controller emits on its event
// channel, replacing the original's Qt-style signal/slot graph with the
// explicit "event: enum" the design notes call for.
type EventKind uint8

const (
	// EventAudioConfig fires once the muxer derives AudioConfig from the
	// first ADTS frame of a session.
	EventAudioConfig EventKind = iota
	// EventPublishError fires when the publisher goroutine hits a fatal
	// protocol/transport error and stops.
	EventPublishError
	// EventCountersChanged carries a fresh counter snapshot. It fires after
	// each capture frame is handed to the queue, after the session connects,
	// when the publisher loop ends, and after a fatal error; it does not
	// fire per frame written to the wire.
	EventCountersChanged
)

// Event is the single sum-type value the Controller sends (from the
// publisher goroutine or from the capture calls) to whatever is consuming
// Controller.Events().
type Event struct {
	Kind EventKind

	// Populated when Kind == EventAudioConfig, except AudioBitrate, which is
	// always zero (the ADTS header does not carry it).
	AudioBitrate     uint32
	AudioSamplingHz  uint32
	AudioChannels    uint8

	// Populated when Kind == EventPublishError.
	ErrKind    string
	ErrMessage string

	// Populated when Kind == EventCountersChanged.
	Counters Counters
}

// Counters is the read-only snapshot of the publish session's progress,
// exposed to the UI/controller caller per §4.5 and §6 of the original spec.
type Counters struct {
	ReceivedAudioFrames uint64
	ReceivedVideoFrames uint64
	DroppedFrames       uint64
	TotalBytesWritten   uint64
	IsStreaming         bool
}
