package media

import (
	"errors"
	"io"
)

// TargetSampleRate is what the recognizers expect.
const TargetSampleRate = 16000

// PCM is mono 16-bit audio held as ints, the layout go-audio buffers use.
type PCM struct {
	Samples    []int
	SampleRate int
}

func (p *PCM) Seconds() float64 {
	if p == nil || p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Slice returns the samples between two offsets in seconds, clamped to the buffer.
func (p *PCM) Slice(fromSec, toSec float64) *PCM {
	from := int(fromSec * float64(p.SampleRate))
	to := int(toSec * float64(p.SampleRate))
	if from < 0 {
		from = 0
	}
	if to > len(p.Samples) {
		to = len(p.Samples)
	}
	if from > to {
		from = to
	}
	return &PCM{Samples: p.Samples[from:to], SampleRate: p.SampleRate}
}

// memFile is an in-memory io.WriteSeeker for the wav encoder.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.buf
}
