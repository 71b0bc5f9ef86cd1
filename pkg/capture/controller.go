package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"casedoc/pkg/domain"
)

// State is the capture controller state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	// StateError is entered when the device could not be acquired. Start may be retried.
	StateError State = "error"
)

// Options configures a Controller.
type Options struct {
	Format Format
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to a random uuid.
	NewID  func() string
	Logger *slog.Logger
}

// Controller drives one capture device session to completion. Operations are
// serialized; an operation that is not valid in the current state is rejected
// with domain.ErrInvalidStateTransition and leaves the state unchanged.
type Controller struct {
	device Device
	format Format
	now    func() time.Time
	newID  func() string
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	handle   Handle
	accrued  time.Duration
	segStart time.Time
	artifact *domain.RawArtifact
	lastErr  error

	// bufMu guards the chunk buffer only, so the device callback never waits
	// on an operation that is releasing the device.
	bufMu     sync.Mutex
	accepting bool
	pcm       []byte
}

// NewController builds an idle controller for device.
func NewController(device Device, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		device: device,
		format: opts.Format.withDefaults(),
		now:    opts.Now,
		newID:  opts.NewID,
		log:    opts.Logger.With("component", "capture"),
		state:  StateIdle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the device error that put the controller into StateError.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Elapsed returns the accrued recording time. Paused time is not counted.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Controller) elapsedLocked() time.Duration {
	if c.state == StateRecording {
		return c.accrued + c.now().Sub(c.segStart)
	}
	return c.accrued
}

// Start acquires the device and begins recording. Valid from idle, or from
// error to retry a failed acquisition.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle && c.state != StateError {
		return c.reject("start")
	}

	c.bufMu.Lock()
	c.pcm = nil
	c.accepting = false
	c.bufMu.Unlock()

	handle, err := c.device.Acquire(ctx, c.format, c.sink)
	if err != nil {
		if !errors.Is(err, domain.ErrDeviceAccessDenied) {
			err = fmt.Errorf("%w: %w", domain.ErrDeviceAccessDenied, err)
		}
		c.state = StateError
		c.lastErr = err
		c.log.Warn("capture device unavailable", "err", err)
		return fmt.Errorf("start capture: %w", err)
	}

	c.handle = handle
	c.lastErr = nil
	c.accrued = 0
	c.segStart = c.now()
	c.setAccepting(true)
	c.state = StateRecording
	return nil
}

// Pause freezes the elapsed time. Valid only while recording.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return c.reject("pause")
	}
	if err := c.handle.Pause(); err != nil {
		return fmt.Errorf("pause capture device: %w", err)
	}
	c.setAccepting(false)
	c.accrued += c.now().Sub(c.segStart)
	c.state = StatePaused
	return nil
}

// Resume continues accruing from the frozen value. Valid only while paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return c.reject("resume")
	}
	if err := c.handle.Resume(); err != nil {
		return fmt.Errorf("resume capture device: %w", err)
	}
	c.segStart = c.now()
	c.setAccepting(true)
	c.state = StateRecording
	return nil
}

// Stop finalizes the captured data into one WAV artifact and releases the
// device. Valid from recording or paused. The duration is the accrued
// recording time, so pauses never inflate it.
func (c *Controller) Stop() (domain.RawArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording && c.state != StatePaused {
		return domain.RawArtifact{}, c.reject("stop")
	}
	if c.state == StateRecording {
		c.accrued += c.now().Sub(c.segStart)
	}
	c.setAccepting(false)
	c.releaseLocked()

	c.bufMu.Lock()
	pcm := c.pcm
	c.pcm = nil
	c.bufMu.Unlock()

	data, err := encodeWAV(pcm, c.format)
	if err != nil {
		c.state = StateError
		c.lastErr = err
		return domain.RawArtifact{}, fmt.Errorf("stop capture: %w", err)
	}
	created := c.now()
	artifact := domain.RawArtifact{
		ID:          c.newID(),
		FileName:    "recording-" + created.UTC().Format("20060102-150405") + ".wav",
		ContentType: domain.ArtifactContentType,
		Data:        data,
		DurationMs:  c.accrued.Milliseconds(),
		CreatedAt:   created,
	}
	c.artifact = &artifact
	c.state = StateStopped
	return artifact, nil
}

// Artifact returns the finished artifact while stopped, for preview.
func (c *Controller) Artifact() (domain.RawArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped || c.artifact == nil {
		return domain.RawArtifact{}, false
	}
	return *c.artifact, true
}

// Reset discards any in-progress or finished artifact, releases the device if
// held and returns to idle. Valid from every state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Discard drops a finished artifact that was never saved. Valid only after Stop.
func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		return c.reject("discard")
	}
	c.resetLocked()
	return nil
}

func (c *Controller) resetLocked() {
	c.setAccepting(false)
	c.releaseLocked()
	c.bufMu.Lock()
	c.pcm = nil
	c.bufMu.Unlock()
	c.artifact = nil
	c.accrued = 0
	c.segStart = time.Time{}
	c.lastErr = nil
	c.state = StateIdle
}

func (c *Controller) releaseLocked() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Release(); err != nil {
		c.log.Warn("release capture device failed", "err", err)
	}
	c.handle = nil
}

func (c *Controller) setAccepting(v bool) {
	c.bufMu.Lock()
	c.accepting = v
	c.bufMu.Unlock()
}

func (c *Controller) sink(chunk []byte) {
	c.bufMu.Lock()
	if c.accepting {
		c.pcm = append(c.pcm, chunk...)
	}
	c.bufMu.Unlock()
}

func (c *Controller) reject(op string) error {
	return fmt.Errorf("%w: %s not allowed while %s", domain.ErrInvalidStateTransition, op, c.state)
}
