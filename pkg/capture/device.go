package capture

import "context"

// Format describes the PCM stream a device delivers. Samples are signed
// 16-bit little endian, interleaved by channel.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is mono 16 kHz, which is what speech-to-text services expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

func (f Format) withDefaults() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultFormat.Channels
	}
	return f
}

// Device grants exclusive access to an audio input. Acquire fails with an
// error wrapping domain.ErrDeviceAccessDenied when the input is unavailable.
// Captured data is pushed to sink from the device's own goroutine until the
// handle is released.
type Device interface {
	Acquire(ctx context.Context, format Format, sink func(chunk []byte)) (Handle, error)
}

// Handle is a held capture device.
type Handle interface {
	Pause() error
	Resume() error
	Release() error
}
