package fits

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestHeaderPaddedToRecord(t *testing.T) {
	h := NewHeader()
	h.SetBool("SIMPLE", true, "Standard FITS")
	h.SetInt("BITPIX", 16, "16-bit data")
	h.SetInt("NAXIS", 2, "Number of axes")

	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if buf.Len()%RecordSize != 0 {
		t.Fatalf("header length %d not a multiple of %d", buf.Len(), RecordSize)
	}
}

func TestHeaderCardLayout(t *testing.T) {
	h := NewHeader()
	h.SetBool("SIMPLE", true, "Standard FITS")
	h.SetInt("NAXIS1", 640, "Number of pixel columns")
	h.SetFloat("ETIME", 2.5, 3, "Exposure time")
	h.SetString("GAIN", "AUTO", "Camera Gain")

	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	// Fixed-format cards: keyword in columns 1-8, "= " in 9-10, value
	// right-justified ending at column 30.
	fixed := map[string]string{
		"SIMPLE": "T",
		"NAXIS1": "640",
		"ETIME":  "2.500",
	}
	for key, value := range fixed {
		c := findCard(t, out, key)
		if c[8] != '=' || c[9] != ' ' {
			t.Errorf("%s card missing value indicator: %q", key, c)
		}
		if got := strings.TrimSpace(c[10:30]); got != value {
			t.Errorf("%s value = %q, want %q", key, got, value)
		}
	}

	gain := findCard(t, out, "GAIN")
	if !strings.Contains(gain, "'AUTO    '") {
		t.Errorf("GAIN card not quoted/padded: %q", gain)
	}
	if !strings.Contains(gain, "/ Camera Gain") {
		t.Errorf("GAIN card missing comment: %q", gain)
	}

	if findCard(t, out, "END") == "" {
		t.Error("header missing END card")
	}
}

// Returns the 80-byte card starting with the given keyword.
func findCard(t *testing.T, header, key string) string {
	t.Helper()
	for i := 0; i+80 <= len(header); i += 80 {
		c := header[i : i+80]
		if strings.HasPrefix(c, key+" ") || strings.HasPrefix(c, key+"=") {
			return c
		}
	}
	t.Fatalf("card %q not found", key)
	return ""
}

func TestHeaderReserveAddsRoom(t *testing.T) {
	plain := NewHeader()
	plain.SetInt("NAXIS", 2, "")

	reserved := NewHeader()
	reserved.SetInt("NAXIS", 2, "")
	reserved.Reserve(220)

	var a, b bytes.Buffer
	if err := plain.Write(&a); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := reserved.Write(&b); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if b.Len() <= a.Len() {
		t.Fatalf("reserved header length %d not larger than plain %d", b.Len(), a.Len())
	}
	if b.Len()%RecordSize != 0 {
		t.Fatalf("reserved header length %d not record aligned", b.Len())
	}
}

func TestWriteImageOffsetEncoding(t *testing.T) {
	pixels := []uint16{0, 1, 32768, 65535}

	var buf bytes.Buffer
	if err := WriteImage(&buf, pixels); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	out := buf.Bytes()

	if len(out)%RecordSize != 0 {
		t.Fatalf("data length %d not a multiple of %d", len(out), RecordSize)
	}

	want := []int16{-32768, -32767, 0, 32767}
	for i, w := range want {
		got := int16(binary.BigEndian.Uint16(out[i*2:]))
		if got != w {
			t.Errorf("pixel %d encoded as %d, want %d", i, got, w)
		}
	}

	// Padding past the payload is zero.
	for i := len(pixels) * 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("padding byte %d = %d, want 0", i, out[i])
		}
	}
}
