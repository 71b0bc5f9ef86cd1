package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// seekableBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = b.pos + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = next
	return next, nil
}

func (b *seekableBuffer) Bytes() []byte {
	return b.buf
}

// encodeWAV wraps raw S16LE PCM into a WAV container.
func encodeWAV(pcm []byte, format Format) ([]byte, error) {
	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, format.SampleRate, bitDepth, format.Channels, 1)
	buf := &audio.IntBuffer{
		Data:           pcmToInts(pcm),
		Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// pcmToInts converts S16LE bytes to samples. A trailing odd byte is dropped.
func pcmToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return samples
}
