package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize covers RIFF + fmt + data chunk headers for the canonical
// PCM layout this package emits.
const wavHeaderSize = 44

// EncodeWAV wraps raw mono PCM samples in a WAV container so batch
// synthesis output and capture takes can cross HTTP boundaries as a
// self-describing format.
func EncodeWAV(pcm []byte, info EncodingInfo) []byte {
	if info.IsZero() {
		info = GetDefaultEncodingInfo()
	}

	bitsPerSample := info.Format.ByteSize() * 8
	byteRate := info.BytesPerSecond()
	blockAlign := info.Format.ByteSize()

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], 1) // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(info.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV extracts the PCM payload and its encoding from a WAV
// container. Raw data without a RIFF header is passed through untouched
// under the default encoding, which keeps providers that already return
// bare linear16 working.
func DecodeWAV(data []byte) ([]byte, EncodingInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, GetDefaultEncodingInfo(), nil
	}

	info := EncodingInfo{}
	var pcm []byte

	// Walk chunks; fmt must precede data per the container spec.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, EncodingInfo{}, fmt.Errorf("malformed fmt chunk (%d bytes)", chunkSize)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate := binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample := binary.LittleEndian.Uint16(data[body+14 : body+16])

			if audioFormat != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("unsupported wav format code %d", audioFormat)
			}
			if channels != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("unsupported channel count %d", channels)
			}

			info.SampleRate = int(sampleRate)
			switch bitsPerSample {
			case 16:
				info.Format = EncodingLinear16
			case 8:
				info.Format = EncodingMulaw
			default:
				return nil, EncodingInfo{}, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
			}
		case "data":
			pcm = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if pcm == nil {
		return nil, EncodingInfo{}, fmt.Errorf("wav container has no data chunk")
	}
	if info.IsZero() {
		return nil, EncodingInfo{}, fmt.Errorf("wav container has no fmt chunk")
	}

	return pcm, info, nil
}
