package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"casedoc/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDevice struct {
	mu       sync.Mutex
	err      error
	sink     func([]byte)
	handles  []*fakeHandle
	acquired int
}

func (d *fakeDevice) Acquire(_ context.Context, _ Format, sink func([]byte)) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.acquired++
	d.sink = sink
	h := &fakeHandle{}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDevice) push(chunk []byte) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(chunk)
	}
}

func (d *fakeDevice) lastHandle() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

type fakeHandle struct {
	paused   bool
	released int
}

func (h *fakeHandle) Pause() error   { h.paused = true; return nil }
func (h *fakeHandle) Resume() error  { h.paused = false; return nil }
func (h *fakeHandle) Release() error { h.released++; return nil }

func newTestController(dev Device, clock *fakeClock) *Controller {
	return NewController(dev, Options{
		Now:   clock.Now,
		NewID: func() string { return "raw-1" },
	})
}

func TestControllerDurationExcludesPausedTime(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{}
	c := newTestController(dev, clock)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(2000 * time.Millisecond)
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(5000 * time.Millisecond)
	if got := c.Elapsed(); got != 2*time.Second {
		t.Fatalf("elapsed while paused = %v, want 2s", got)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.Advance(1000 * time.Millisecond)
	artifact, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact.DurationMs != 3000 {
		t.Fatalf("duration = %d, want 3000", artifact.DurationMs)
	}
	if artifact.ContentType != domain.ArtifactContentType {
		t.Fatalf("content type = %q", artifact.ContentType)
	}
	if artifact.ID != "raw-1" {
		t.Fatalf("id = %q", artifact.ID)
	}
	if c.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", c.State())
	}
	if dev.lastHandle().released != 1 {
		t.Fatalf("device not released on stop")
	}
}

func TestControllerStopFromPausedKeepsFrozenDuration(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(&fakeDevice{}, clock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(1500 * time.Millisecond)
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(time.Hour)
	artifact, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact.DurationMs != 1500 {
		t.Fatalf("duration = %d, want 1500", artifact.DurationMs)
	}
}

func TestControllerZeroDurationIsValid(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(&fakeDevice{}, clock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	artifact, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact.DurationMs != 0 {
		t.Fatalf("duration = %d, want 0", artifact.DurationMs)
	}
	if len(artifact.Data) < 44 || string(artifact.Data[:4]) != "RIFF" || string(artifact.Data[8:12]) != "WAVE" {
		t.Fatalf("expected a wav header, got %d bytes", len(artifact.Data))
	}
}

func TestControllerRejectsInvalidTransitions(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(&fakeDevice{}, clock)

	if err := c.Pause(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("pause from idle: expected invalid transition, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("state changed to %s", c.State())
	}
	if err := c.Resume(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("resume from idle: expected invalid transition, got %v", err)
	}
	if _, err := c.Stop(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("stop from idle: expected invalid transition, got %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("second start: expected invalid transition, got %v", err)
	}
	if err := c.Resume(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("resume while recording: expected invalid transition, got %v", err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := c.Pause(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("pause from stopped: expected invalid transition, got %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("state changed to %s", c.State())
	}
}

func TestControllerDeviceDeniedIsRecoverable(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{err: errors.New("permission denied")}
	c := newTestController(dev, clock)

	err := c.Start(context.Background())
	if !errors.Is(err, domain.ErrDeviceAccessDenied) {
		t.Fatalf("expected device access denied, got %v", err)
	}
	if c.State() != StateError {
		t.Fatalf("state = %s, want error", c.State())
	}
	if c.Err() == nil {
		t.Fatalf("expected stored device error")
	}

	dev.mu.Lock()
	dev.err = nil
	dev.mu.Unlock()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("state = %s, want recording", c.State())
	}
	c.Reset()
}

func TestControllerOnlyBuffersWhileRecording(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{}
	c := newTestController(dev, clock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	dev.push(samples(1, 2))
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	dev.push(samples(99, 99, 99))
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	dev.push(samples(3))
	artifact, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	dev.push(samples(42))

	data := artifact.Data[44:]
	if len(data) != 6 {
		t.Fatalf("pcm bytes = %d, want 6", len(data))
	}
	for i, want := range []int16{1, 2, 3} {
		got := int16(binary.LittleEndian.Uint16(data[2*i:]))
		if got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestControllerResetReleasesDevice(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{}
	c := newTestController(dev, clock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Second)
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	c.Reset()
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
	if dev.lastHandle().released != 1 {
		t.Fatalf("device not released on reset")
	}
	if c.Elapsed() != 0 {
		t.Fatalf("elapsed not cleared")
	}
	if _, ok := c.Artifact(); ok {
		t.Fatalf("expected no artifact after reset")
	}
}

func TestControllerDiscardAfterStop(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{}
	c := newTestController(dev, clock)
	if err := c.Discard(); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("discard from idle: expected invalid transition, got %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := c.Artifact(); !ok {
		t.Fatalf("expected preview artifact")
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := c.Artifact(); ok {
		t.Fatalf("artifact survived discard")
	}
	if dev.lastHandle().released != 1 {
		t.Fatalf("device released %d times, want 1", dev.lastHandle().released)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start after discard: %v", err)
	}
	c.Reset()
}

func TestControllerConcurrentOperationsSerialize(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{}
	c := newTestController(dev, clock)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	stops := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dev.push(samples(int16(i)))
			if _, err := c.Stop(); err == nil {
				mu.Lock()
				stops++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if stops != 1 {
		t.Fatalf("stop succeeded %d times, want 1", stops)
	}
}

func samples(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
