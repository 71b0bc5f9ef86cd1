package capture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"casedoc/pkg/domain"
)

// MalgoDevice captures from the system default input through miniaudio.
type MalgoDevice struct {
	Logger *slog.Logger
}

func (d MalgoDevice) Acquire(ctx context.Context, format Format, sink func([]byte)) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	format = format.withDefaults()

	var backends []malgo.Backend
	switch runtime.GOOS {
	case "linux":
		backends = []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		backends = []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		backends = []malgo.Backend{malgo.BackendCoreaudio}
	}
	mctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %w", domain.ErrDeviceAccessDenied, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			sink(input)
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: init capture device: %w", domain.ErrDeviceAccessDenied, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: start capture device: %w", domain.ErrDeviceAccessDenied, err)
	}
	return &malgoHandle{ctx: mctx, device: device}, nil
}

type malgoHandle struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	once sync.Once
}

func (h *malgoHandle) Pause() error {
	return h.device.Stop()
}

func (h *malgoHandle) Resume() error {
	return h.device.Start()
}

func (h *malgoHandle) Release() error {
	var err error
	h.once.Do(func() {
		if h.device.IsStarted() {
			err = h.device.Stop()
		}
		h.device.Uninit()
		if uerr := h.ctx.Uninit(); uerr != nil && err == nil {
			err = uerr
		}
		h.ctx.Free()
	})
	return err
}
