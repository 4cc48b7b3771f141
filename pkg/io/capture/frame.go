package capture

import (
	"encoding/binary"
	"errors"
	"time"
)

// frameHeader is timestamp(8) + sampleRate(4) + channels(2) + dataLen(4).
const frameHeader = 18

var ErrShortFrame = errors.New("frame shorter than header")

// Frame is one block of little-endian 16-bit PCM as delivered by a device.
type Frame struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int32
	Channels   int16
}

// NewFrame packs int16 samples into a frame.
func NewFrame(samples []int16, sampleRate int, channels int, ts time.Time) Frame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return Frame{Data: data, Timestamp: ts, SampleRate: int32(sampleRate), Channels: int16(channels)}
}

// Samples unpacks the frame into ints, the layout the wav encoder takes.
func (f *Frame) Samples() []int {
	out := make([]int, len(f.Data)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(f.Data[i*2:])))
	}
	return out
}

func (f *Frame) Seconds() float64 {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	return float64(len(f.Data)/2) / float64(f.Channels) / float64(f.SampleRate)
}

func (f *Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, frameHeader+len(f.Data))

	binary.LittleEndian.PutUint64(buf[0:], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint16(buf[12:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[14:], uint32(len(f.Data)))
	copy(buf[frameHeader:], f.Data)

	return buf, nil
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeader {
		return ErrShortFrame
	}

	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[0:])))
	f.SampleRate = int32(binary.LittleEndian.Uint32(data[8:]))
	f.Channels = int16(binary.LittleEndian.Uint16(data[12:]))
	dataLen := int(binary.LittleEndian.Uint32(data[14:]))

	if len(data[frameHeader:]) < dataLen {
		return ErrShortFrame
	}
	f.Data = make([]byte, dataLen)
	copy(f.Data, data[frameHeader:frameHeader+dataLen])
	return nil
}

// Buffer holds captured frames in arrival order.
type Buffer interface {
	// Enqueue appends a frame and returns how many old frames were dropped to fit it.
	Enqueue(f Frame) (int, error)
	Dequeue() (Frame, bool)
	// Drain removes and returns every buffered frame.
	Drain() []Frame
	Len() int
	Capacity() int
	Reset()
}
