// Package miniaudio provides capture and playback devices backed by
// malgo. A single Client owns the shared audio context and can serve as
// both the session's input and output device.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/saylem-ai/saylem-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playback playbackDevice
	capture  captureDevice

	closeOnce sync.Once
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.playback.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := client.capture.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.capture.start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.capture.stop()
}

func (c *Client) Start() error {
	return c.playback.start()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playback.enqueue(audio)
}

func (c *Client) Mark(name string, callback func(name string)) error {
	return c.playback.mark(name, callback)
}

func (c *Client) Stop() error {
	return c.playback.stop()
}

// Close releases both devices and the shared context. Safe to call from
// both the input and output side of a session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.capture.uninit()
		c.playback.uninit()
		if c.audioContext != nil {
			_ = c.audioContext.Uninit()
			c.audioContext.Free()
		}
	})
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
