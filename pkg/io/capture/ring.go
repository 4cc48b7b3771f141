package capture

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

var ErrFrameTooLarge = errors.New("audio frame too large for buffer")

// ring stores length-prefixed frames in a byte ring and drops the oldest
// frame whenever a new one does not fit.
type ring struct {
	mu   sync.Mutex
	size int
	rb   *ringbuffer.RingBuffer
}

// NewRing sizes the ring in bytes.
func NewRing(size int) Buffer {
	return &ring{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}

// NewRingForDuration sizes the ring to hold roughly maxSeconds of mono
// 16-bit audio delivered in frames of framesPerBuffer samples.
func NewRingForDuration(maxSeconds, sampleRate, framesPerBuffer int) Buffer {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	frameBytes := framesPerBuffer*2 + frameHeader + 4
	frames := (maxSeconds*sampleRate + framesPerBuffer - 1) / framesPerBuffer
	return NewRing(frames * frameBytes)
}

func (r *ring) Capacity() int {
	return r.size
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length()
}

func (r *ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
}

func (r *ring) Enqueue(f Frame) (int, error) {
	data, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	required := len(data) + 4
	if required > r.rb.Capacity() {
		return 0, ErrFrameTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for r.rb.Free() < required {
		if !r.skipFrame() {
			// corrupted framing, start over
			r.rb.Reset()
			break
		}
		dropped++
	}

	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := r.rb.Write(prefix); err != nil {
		return dropped, err
	}
	_, err = r.rb.Write(data)
	return dropped, err
}

func (r *ring) Dequeue() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next()
}

func (r *ring) Drain() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	var frames []Frame
	for !r.rb.IsEmpty() {
		f, ok := r.next()
		if !ok {
			r.rb.Reset()
			break
		}
		frames = append(frames, f)
	}
	return frames
}

func (r *ring) next() (Frame, bool) {
	data, ok := r.readFrame()
	if !ok {
		return Frame{}, false
	}
	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return Frame{}, false
	}
	return f, true
}

func (r *ring) skipFrame() bool {
	_, ok := r.readFrame()
	return ok
}

func (r *ring) readFrame() ([]byte, bool) {
	if r.rb.IsEmpty() {
		return nil, false
	}
	prefix := make([]byte, 4)
	if n, err := r.rb.Read(prefix); err != nil || n != 4 {
		return nil, false
	}
	size := int(binary.LittleEndian.Uint32(prefix))
	data := make([]byte, size)
	if size == 0 {
		return data, true
	}
	if n, err := r.rb.Read(data); err != nil || n != size {
		return nil, false
	}
	return data, true
}
