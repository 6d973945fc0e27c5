// Package queue implements the bounded, two-lane producer/consumer buffer
// that decouples capture callbacks from the RTMP publisher goroutine.
package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/alxayo/rtmp-publish/internal/errors"
)

// FrameKind identifies the lane a MediaFrame belongs to.
type FrameKind uint8

const (
	FrameAudio FrameKind = iota
	FrameVideo
	FrameEOS
)

func (k FrameKind) String() string {
	switch k {
	case FrameAudio:
		return "audio"
	case FrameVideo:
		return "video"
	case FrameEOS:
		return "eos"
	default:
		return "unknown"
	}
}

// MediaFrame is the unit moved through the queue. Payload is owned by the
// frame once posted; producers MUST NOT retain a reference to it afterwards.
type MediaFrame struct {
	Kind    FrameKind
	Payload []byte
	DTS     int64 // milliseconds
	PTS     int64 // milliseconds
}

// Default lane capacities per the original publisher's MAX_QUEUE_SIZE=128,
// with audio allowed twice the depth since it arrives at finer granularity.
const (
	DefaultVideoCap = 128
	DefaultAudioCap = 256
)

// FrameQueue is a two-lane bounded FIFO guarded by one mutex and one
// condition variable, matching the synchronisation style the reference
// publisher uses (a single lock plus a wait condition), not a channel-based
// design: the interleaving policy needs to peek both lane heads before
// deciding which to pop, which a plain channel cannot express.
type FrameQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	audioCap int
	videoCap int

	audio *list.List
	video *list.List

	stopped bool

	deliveredAudio bool
	deliveredVideo bool

	receivedAudio uint64
	receivedVideo uint64
	dropped       uint64
}

// New creates a FrameQueue with the given per-lane capacities. A capacity of
// 0 falls back to the default for that lane.
func New(audioCap, videoCap int) *FrameQueue {
	if audioCap <= 0 {
		audioCap = DefaultAudioCap
	}
	if videoCap <= 0 {
		videoCap = DefaultVideoCap
	}
	q := &FrameQueue{
		audioCap: audioCap,
		videoCap: videoCap,
		audio:    list.New(),
		video:    list.New(),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Post enqueues frame onto its matching lane. EndOfStream frames are pushed
// to both lanes unconditionally so a blocked Take on either lane observes
// termination. Frames are dropped (not enqueued) once the destination lane
// is at capacity; dropped frames increment the dropped counter instead of
// the lane's received counter.
func (q *FrameQueue) Post(frame MediaFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}

	if frame.Kind == FrameEOS {
		q.audio.PushBack(frame)
		q.video.PushBack(frame)
		q.cond.Broadcast()
		return
	}

	switch frame.Kind {
	case FrameAudio:
		if q.audio.Len() >= q.audioCap {
			q.dropped++
			return
		}
		q.audio.PushBack(frame)
		q.receivedAudio++
	case FrameVideo:
		if q.video.Len() >= q.videoCap {
			q.dropped++
			return
		}
		q.video.PushBack(frame)
		q.receivedVideo++
	default:
		return
	}
	q.cond.Broadcast()
}

// Take blocks until a frame is available per the interleaving policy, ctx is
// cancelled, or the queue is stopped. The policy:
//  1. If either lane head is EndOfStream, return it.
//  2. If both lanes are non-empty, pop the head with the smaller DTS; ties
//     favour audio.
//  3. If exactly one lane is non-empty and the consumer has already
//     delivered at least one frame of the other kind, pop from that lane.
//  4. Otherwise wait.
func (q *FrameQueue) Take(ctx context.Context) (MediaFrame, error) {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.Stop()
			case <-done:
			}
		}()
		defer close(done)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if frame, ok := q.popLocked(); ok {
			return frame, nil
		}
		if q.stopped {
			return MediaFrame{}, errors.NewProtocolError("queue.take", errStopped)
		}
		q.cond.Wait()
	}
}

func (q *FrameQueue) popLocked() (MediaFrame, bool) {
	aFront, aOK := frontValue(q.audio)
	vFront, vOK := frontValue(q.video)

	if aOK && aFront.Kind == FrameEOS {
		return q.popFrontLocked(q.audio, FrameAudio)
	}
	if vOK && vFront.Kind == FrameEOS {
		return q.popFrontLocked(q.video, FrameVideo)
	}

	if aOK && vOK {
		if vFront.DTS < aFront.DTS {
			return q.popFrontLocked(q.video, FrameVideo)
		}
		return q.popFrontLocked(q.audio, FrameAudio)
	}
	if aOK && q.deliveredVideo {
		return q.popFrontLocked(q.audio, FrameAudio)
	}
	if vOK && q.deliveredAudio {
		return q.popFrontLocked(q.video, FrameVideo)
	}
	return MediaFrame{}, false
}

func (q *FrameQueue) popFrontLocked(l *list.List, kind FrameKind) (MediaFrame, bool) {
	e := l.Front()
	l.Remove(e)
	frame := e.Value.(MediaFrame)
	switch kind {
	case FrameAudio:
		q.deliveredAudio = true
	case FrameVideo:
		q.deliveredVideo = true
	}
	return frame, true
}

func frontValue(l *list.List) (MediaFrame, bool) {
	e := l.Front()
	if e == nil {
		return MediaFrame{}, false
	}
	return e.Value.(MediaFrame), true
}

// Stop marks the queue stopped and wakes every blocked Take.
func (q *FrameQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Stats reports the monotone counters protected by the queue's own lock.
type Stats struct {
	ReceivedAudio uint64
	ReceivedVideo uint64
	Dropped       uint64
}

func (q *FrameQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		ReceivedAudio: q.receivedAudio,
		ReceivedVideo: q.receivedVideo,
		Dropped:       q.dropped,
	}
}

var errStopped = stoppedErr{}

type stoppedErr struct{}

func (stoppedErr) Error() string { return "frame queue stopped" }
