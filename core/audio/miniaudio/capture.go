package miniaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/saylem-ai/saylem-core/core/audio"
)

// captureDevice wraps a malgo capture device and forwards raw PCM frames
// to a single sink while started. The sink is held in an atomic pointer
// so the audio thread never contends with start/stop for the device lock.
type captureDevice struct {
	device *malgo.Device
	sink   atomic.Pointer[func(chunk []byte)]

	mu sync.Mutex
}

func (d *captureDevice) init(audioContext *malgo.AllocatedContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const channels = 1
	format := malgo.FormatS16
	frameSize := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Capture.Format = format
	config.Capture.Channels = channels
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * frameSize
			if n == 0 || len(input) < n {
				return
			}
			if sink := d.sink.Load(); sink != nil {
				(*sink)(input[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	d.device = device
	return nil
}

func (d *captureDevice) start(sink func(chunk []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	d.sink.Store(&sink)
	if d.device.IsStarted() {
		return nil
	}
	if err := d.device.Start(); err != nil {
		d.sink.Store(nil)
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (d *captureDevice) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	d.sink.Store(nil)
	if !d.device.IsStarted() {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (d *captureDevice) uninit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.sink.Store(nil)
}
