// Package portaudio provides capture and playback devices backed by
// the PortAudio bindings. Playback writes are synchronous, so marks
// fire as soon as they are placed.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/saylem-ai/saylem-core/core/audio"
)

type Client struct {
	bufferSize    int
	stream        *portaudio.Stream
	leftoverAudio []byte

	in  []int16
	out []int16

	mu        sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return nil
	}
	if err := c.stream.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			default:
				if err := c.stream.Read(); err != nil {
					continue
				}
				buf := bytes.Buffer{}
				_ = binary.Write(&buf, binary.LittleEndian, c.in)
				onAudio(buf.Bytes())
			}
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.stop = nil
	return c.stream.Stop()
}

func (c *Client) Start() error {
	return nil
}

func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	audio = append(c.leftoverAudio, audio...)
	for i := range len(audio)/bufferSize + 1 {
		if (i+1)*bufferSize > len(audio) {
			c.leftoverAudio = make([]byte, len(audio)-i*bufferSize)
			copy(c.leftoverAudio, audio[i*bufferSize:])
			break
		}

		_ = binary.Read(bytes.NewBuffer(audio[i*bufferSize:(i+1)*bufferSize]), binary.LittleEndian, c.out)
		_ = c.stream.Write()
	}

	return nil
}

// Mark pads the trailing partial buffer out with silence, writes it,
// and fires the callback. Everything sent before the mark has already
// reached the device by then.
func (c *Client) Mark(name string, callback func(name string)) error {
	if len(c.leftoverAudio) > 0 {
		tail := make([]byte, c.bufferSize*2)
		copy(tail, c.leftoverAudio)
		c.leftoverAudio = nil
		_ = binary.Read(bytes.NewBuffer(tail), binary.LittleEndian, c.out)
		_ = c.stream.Write()
	}
	if callback != nil {
		go callback(name)
	}
	return nil
}

func (c *Client) Stop() error {
	c.leftoverAudio = nil
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		_ = portaudio.Terminate()
	})
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
