// Package audiosource defines the minimal decoded-audio interface
// filterlib needs to build IRs from an audio file, plus a WAV-backed
// implementation adapting github.com/go-audio/wav.
package audiosource

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when OpenWAV is given data that isn't a valid
// WAV file.
var ErrNotWAV = errors.New("audiosource: not a valid WAV file")

// AudioFileSource is the read-only contract filterlib.LoadAudioFile
// needs from a decoded audio file.
type AudioFileSource interface {
	SampleRate() float64
	Channels() int
	// ReadAll returns every sample in the file as interleaved float64
	// in [-1, 1], frame-major (frame*Channels()+channel).
	ReadAll() ([]float64, error)
}

type wavSource struct {
	dec      *wav.Decoder
	sampleRate float64
	channels   int
}

// OpenWAV decodes the WAV container from r (which is read in full if it
// is not already an io.ReadSeeker, since the underlying decoder
// requires seeking) and returns an AudioFileSource over it.
func OpenWAV(r io.Reader) (AudioFileSource, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("audiosource: reading WAV data: %w", err)
		}
		rs = &bytesReadSeeker{data: data}
	}

	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	dec.ReadInfo()
	if dec.Err() != nil {
		return nil, fmt.Errorf("audiosource: reading WAV header: %w", dec.Err())
	}

	return &wavSource{
		dec:        dec,
		sampleRate: float64(dec.SampleRate),
		channels:   int(dec.NumChans),
	}, nil
}

func (s *wavSource) SampleRate() float64 { return s.sampleRate }
func (s *wavSource) Channels() int       { return s.channels }

func (s *wavSource) ReadAll() ([]float64, error) {
	var buf *goaudio.IntBuffer
	buf, err := s.dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audiosource: decoding WAV samples: %w", err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	maxVal := float64(int64(1) << (bitDepth - 1))

	out := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float64(v) / maxVal
	}
	return out, nil
}

type bytesReadSeeker struct {
	data   []byte
	offset int64
}

func (b *bytesReadSeeker) Read(p []byte) (int, error) {
	if b.offset >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.offset:])
	b.offset += int64(n)
	return n, nil
}

func (b *bytesReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = b.offset + offset
	case io.SeekEnd:
		newOffset = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("audiosource: invalid whence %d", whence)
	}
	if newOffset < 0 {
		return 0, fmt.Errorf("audiosource: negative seek position")
	}
	b.offset = newOffset
	return newOffset, nil
}
