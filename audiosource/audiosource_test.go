package audiosource

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"
	"testing"
)

// buildMonoWAV assembles a minimal canonical PCM WAV file so OpenWAV can
// be exercised without a real audio file on disk.
func buildMonoWAV(sampleRate, bitsPerSample int, samples []int16) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}
	dataBytes := data.Bytes()

	byteRate := sampleRate * (bitsPerSample / 8)
	blockAlign := bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(dataBytes)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(dataBytes)))
	buf.Write(dataBytes)
	return buf.Bytes()
}

func TestOpenWAVReadsHeaderAndSamples(t *testing.T) {
	raw := buildMonoWAV(8000, 16, []int16{0, 16384, -16384, 32767})
	src, err := OpenWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if src.SampleRate() != 8000 {
		t.Fatalf("SampleRate: got %v want 8000", src.SampleRate())
	}
	if src.Channels() != 1 {
		t.Fatalf("Channels: got %v want 1", src.Channels())
	}

	samples, err := src.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples want 4", len(samples))
	}
	want := []float64{0, 16384.0 / 32768.0, -16384.0 / 32768.0, 32767.0 / 32768.0}
	for i, w := range want {
		if math.Abs(samples[i]-w) > 1e-6 {
			t.Fatalf("sample %d: got %v want %v", i, samples[i], w)
		}
	}
}

// TestOpenWAVAcceptsNonSeekableReader exercises the bytesReadSeeker shim
// used when the input isn't already an io.ReadSeeker.
func TestOpenWAVAcceptsNonSeekableReader(t *testing.T) {
	raw := buildMonoWAV(44100, 16, []int16{1, 2, 3})
	nonSeekable := io.MultiReader(bytes.NewReader(raw))
	src, err := OpenWAV(nonSeekable)
	if err != nil {
		t.Fatal(err)
	}
	if src.SampleRate() != 44100 {
		t.Fatalf("SampleRate: got %v want 44100", src.SampleRate())
	}
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	_, err := OpenWAV(strings.NewReader("not a wav file at all"))
	if err == nil {
		t.Fatal("expected ErrNotWAV")
	}
}

func TestBytesReadSeeker(t *testing.T) {
	b := &bytesReadSeeker{data: []byte("0123456789")}

	buf := make([]byte, 4)
	n, err := b.Read(buf)
	if err != nil || n != 4 || string(buf) != "0123" {
		t.Fatalf("initial read: n=%d err=%v buf=%q", n, err, buf)
	}

	pos, err := b.Seek(2, io.SeekStart)
	if err != nil || pos != 2 {
		t.Fatalf("SeekStart: pos=%d err=%v", pos, err)
	}
	n, _ = b.Read(buf)
	if n != 4 || string(buf) != "2345" {
		t.Fatalf("read after SeekStart: n=%d buf=%q", n, buf)
	}

	pos, err = b.Seek(-2, io.SeekCurrent)
	if err != nil || pos != 4 {
		t.Fatalf("SeekCurrent: pos=%d err=%v", pos, err)
	}

	pos, err = b.Seek(0, io.SeekEnd)
	if err != nil || pos != 10 {
		t.Fatalf("SeekEnd: pos=%d err=%v", pos, err)
	}
	if _, err := b.Read(buf); err != io.EOF {
		t.Fatalf("read at EOF: err=%v want io.EOF", err)
	}

	if _, err := b.Seek(-100, io.SeekStart); err == nil {
		t.Fatal("expected error for negative seek position")
	}
}
