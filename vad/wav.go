package vad

import (
	"encoding/binary"
	"errors"

	"github.com/voxstream/transcribe-core/stt"
)

// ErrNotWAV is returned when decodeWAV is given a buffer that is not a
// well-formed RIFF/WAVE container.
var ErrNotWAV = errors.New("vad: not a RIFF/WAVE container")

const (
	pcmBytesPerSample = 2
	pcmMaxAmplitude   = 32768.0
)

// decodeWAV parses a 16-bit PCM WAV file into normalized float32 samples in
// [-1, 1] and its declared sample rate. Multi-channel audio is downmixed to
// mono by averaging channels, matching the original service's behavior.
func decodeWAV(data []byte) (samples []float32, sampleRate int, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var channels int
	var bitsPerSample int
	var pcm []byte

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
				return nil, 0, ErrNotWAV
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if pcm == nil || channels == 0 || bitsPerSample != 16 {
		return nil, 0, ErrNotWAV
	}

	frames := len(pcm) / (pcmBytesPerSample * channels)
	samples = make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * pcmBytesPerSample
			// #nosec G115 -- overflow is intentional for signed PCM conversion
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		samples[i] = float32(sum) / float32(channels) / pcmMaxAmplitude
	}

	return samples, sampleRate, nil
}

// encodeWAV packs mono float32 samples in [-1, 1] back into a 16-bit PCM WAV
// container, reusing the stt package's WAV writer (stt.WrapPCMAsWAV) so both
// packages emit byte-identical headers.
func encodeWAV(samples []float32, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*pcmBytesPerSample)
	for i, s := range samples {
		v := int16(clamp(s) * (pcmMaxAmplitude - 1))
		binary.LittleEndian.PutUint16(pcm[i*pcmBytesPerSample:], uint16(v))
	}
	return stt.WrapPCMAsWAV(pcm, sampleRate, 1, 16)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
