package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/saylem-ai/saylem-core/core/audio"
)

// queuedMark is a position in the playback queue whose callback fires
// once every byte before it has been handed to the device.
type queuedMark struct {
	name     string
	position int
	callback func(name string)
}

// playbackDevice wraps a malgo playback device. Audio is appended to an
// in-memory queue and drained by the device's data callback. The queue
// has its own lock; the audio thread never touches the device lock.
type playbackDevice struct {
	device *malgo.Device
	mu     sync.Mutex

	queue   []byte
	marks   []queuedMark
	queueMu sync.Mutex
}

func (d *playbackDevice) init(audioContext *malgo.AllocatedContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const channels = 1
	format := malgo.FormatS16
	frameSize := malgo.SampleSizeInBytes(format) * channels
	sampleRate := uint32(audio.DefaultSampleRate)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = channels
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10 // ~100ms periods
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			d.fill(output, int(frameCount)*frameSize)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	d.device = device
	return nil
}

func (d *playbackDevice) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if d.device.IsStarted() {
		return nil
	}
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (d *playbackDevice) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	d.clear()
	return nil
}

func (d *playbackDevice) enqueue(chunk []byte) error {
	d.mu.Lock()
	started := d.device != nil && d.device.IsStarted()
	d.mu.Unlock()

	if !started {
		return fmt.Errorf("playback device not started")
	}

	d.queueMu.Lock()
	d.queue = append(d.queue, chunk...)
	d.queueMu.Unlock()
	return nil
}

func (d *playbackDevice) mark(name string, callback func(name string)) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	d.marks = append(d.marks, queuedMark{
		name:     name,
		position: len(d.queue),
		callback: callback,
	})
	return nil
}

func (d *playbackDevice) clear() {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	d.queue = nil
	d.marks = nil
}

func (d *playbackDevice) uninit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.clear()
}

// fill copies up to need bytes from the queue into output and fires any
// marks the drain passed. Callbacks run on their own goroutine so the
// audio thread never blocks on them.
func (d *playbackDevice) fill(output []byte, need int) {
	d.queueMu.Lock()

	passed := 0
	for i := range d.marks {
		if d.marks[i].position >= need {
			d.marks[i].position -= need
		} else {
			passed++
		}
	}
	var fired []queuedMark
	if passed > 0 {
		fired = append(fired, d.marks[:passed]...)
		d.marks = d.marks[passed:]
	}

	n := copy(output, d.queue)
	if n == len(d.queue) {
		d.queue = nil
	} else {
		d.queue = d.queue[n:]
	}

	d.queueMu.Unlock()

	if len(fired) > 0 {
		go func() {
			for _, m := range fired {
				m.callback(m.name)
			}
		}()
	}
}
