package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"
)

// captureService runs one listening window at a time over the configured
// input device: acquire, accumulate chunks, release on manual stop, at
// the ceiling, or on session cancellation. The ceiling timer is the only
// autonomous timer in a session.
type captureService struct {
	// input is the configured capture device; nil means no microphone.
	input AudioInput

	// ceiling bounds a single listening window.
	ceiling time.Duration

	// onChunk taps raw captured audio for observers.
	onChunk func(audio []byte)

	mu   sync.Mutex
	take *captureTake
}

func newCaptureService() *captureService {
	return &captureService{ceiling: DefaultCaptureCeiling}
}

func (c *captureService) isConfigured() bool { return c != nil && c.input != nil }

// record runs one listening window and returns the finalized utterance.
// Returns a *DeviceError when the device cannot be acquired and
// ctx.Err() when the session is cancelled mid-capture; cancelled
// captures discard their buffered audio.
func (c *captureService) record(ctx context.Context) ([]byte, error) {
	if !c.isConfigured() {
		return nil, &DeviceError{Err: errors.New("no audio input configured")}
	}

	take := newCaptureTake(c.input.StopCapture)
	c.mu.Lock()
	c.take = take
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.take = nil
		c.mu.Unlock()
	}()

	if err := c.input.StartCapture(ctx, func(audio []byte) {
		if c.onChunk != nil {
			c.onChunk(audio)
		}
		take.append(audio)
	}); err != nil {
		take.stop()
		return nil, &DeviceError{Err: err}
	}
	take.arm(c.ceiling)

	select {
	case <-take.done:
		return take.bytes(), nil
	case <-ctx.Done():
		take.stop()
		return nil, ctx.Err()
	}
}

// stopActive finalizes the current listening window. A no-op when no
// capture is active or the window already stopped.
func (c *captureService) stopActive() {
	c.mu.Lock()
	take := c.take
	c.mu.Unlock()
	if take != nil {
		take.stop()
	}
}

// close stops any active window and releases the device.
func (c *captureService) close() error {
	c.stopActive()
	if c.isConfigured() {
		return c.input.Close()
	}
	return nil
}

// captureTake is the handle for one listening window. Stopping is
// idempotent; chunks arriving after stop are dropped.
type captureTake struct {
	mu      sync.Mutex
	buf     []byte
	stopped bool

	timer     *time.Timer
	stopOnce  sync.Once
	stopInput func() error
	done      chan struct{}
}

func newCaptureTake(stopInput func() error) *captureTake {
	return &captureTake{
		stopInput: stopInput,
		done:      make(chan struct{}),
	}
}

func (t *captureTake) append(audio []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.buf = append(t.buf, audio...)
}

// arm schedules the auto-stop ceiling. Called once per take, after the
// device started delivering audio.
func (t *captureTake) arm(ceiling time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = time.AfterFunc(ceiling, t.stop)
}

func (t *captureTake) stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()

		if t.stopInput != nil {
			// Release the device before signalling completion so the
			// next listening window can reacquire it.
			_ = t.stopInput()
		}
		close(t.done)
	})
}

func (t *captureTake) bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf
}
