package audiomask

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadMonoPCM16 reads a mono 16-bit PCM WAV file, returning its samples and
// sample rate. No third-party WAV/audio codec library appears anywhere in
// the retrieval pack; this is a minimal RIFF reader scoped to exactly the
// fixed contract this service produces and consumes (mono, PCM-16, fixed
// sample rate), not a general-purpose decoder.
func ReadMonoPCM16(r io.Reader) (samples []int16, sampleRate int, err error) {
	var riffHeader [12]byte
	if _, err = io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, 0, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAVE file")
	}

	var numChannels, bitsPerSample uint16
	var foundFmt, foundData bool

	for !foundData {
		var chunkHeader [8]byte
		if _, err = io.ReadFull(r, chunkHeader[:]); err != nil {
			return nil, 0, fmt.Errorf("reading chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err = io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("reading fmt chunk: %w", err)
			}
			numChannels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
			}
			if numChannels != 1 {
				return nil, 0, fmt.Errorf("unsupported channel count: %d", numChannels)
			}
			body := make([]byte, chunkSize)
			if _, err = io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("reading data chunk: %w", err)
			}
			samples = make([]int16, len(body)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(body[i*2 : i*2+2]))
			}
			foundData = true
		default:
			if _, err = io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, 0, fmt.Errorf("skipping chunk %q: %w", chunkID, err)
			}
		}
		if chunkSize%2 == 1 {
			if _, err = io.CopyN(io.Discard, r, 1); err != nil {
				return nil, 0, fmt.Errorf("skipping chunk pad byte: %w", err)
			}
		}
	}

	if len(samples) == 0 {
		return nil, 0, ErrEmpty
	}
	return samples, sampleRate, nil
}

// WriteMonoPCM16 writes samples as a mono 16-bit PCM WAV file.
func WriteMonoPCM16(w io.Writer, samples []int16, sampleRate int) error {
	dataSize := len(samples) * 2
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	write := func(v interface{}) error { return binary.Write(w, binary.LittleEndian, v) }

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := write(uint32(36 + dataSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := write(uint32(16)); err != nil {
		return err
	}
	if err := write(uint16(1)); err != nil { // PCM
		return err
	}
	if err := write(uint16(numChannels)); err != nil {
		return err
	}
	if err := write(uint32(sampleRate)); err != nil {
		return err
	}
	if err := write(uint32(byteRate)); err != nil {
		return err
	}
	if err := write(uint16(blockAlign)); err != nil {
		return err
	}
	if err := write(uint16(bitsPerSample)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	if err := write(uint32(dataSize)); err != nil {
		return err
	}
	return write(samples)
}
