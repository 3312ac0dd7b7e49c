package fits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (

	// FITS record size; header and data units are padded to multiples
	// of this.
	RecordSize = 2880

	// Every header card is exactly this wide.
	cardSize = 80

	// Offset added to unsigned 16-bit pixel values so they fit the
	// signed storage type (the BZERO convention).
	pixelOffset = 32768
)

var ErrEncode = errors.New("fits encode failed")

// One formatted 80-byte header card.
type card string

// Accumulates header cards for a single primary HDU.
type Header struct {
	cards   []card
	reserve int // Blank cards emitted before END for later additions.
}

func NewHeader() *Header {
	return &Header{}
}

// Appends a logical-valued card ("T" or "F").
func (h *Header) SetBool(name string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	h.append(name, v, comment)
}

// Appends an integer-valued card.
func (h *Header) SetInt(name string, value int64, comment string) {
	h.append(name, strconv.FormatInt(value, 10), comment)
}

// Appends a floating-point card with the given decimal precision.
func (h *Header) SetFloat(name string, value float64, prec int, comment string) {
	h.append(name, strconv.FormatFloat(value, 'f', prec, 64), comment)
}

// Appends a string-valued card. Embedded single quotes are doubled per
// the FITS escaping rule.
func (h *Header) SetString(name, value, comment string) {
	quoted := "'" + strings.ReplaceAll(value, "'", "''") + "'"
	if len(quoted) < 10 {
		// Short strings are padded inside the quotes to the minimum
		// fixed-format width.
		quoted = fmt.Sprintf("'%-8s'", strings.ReplaceAll(value, "'", "''"))
	}
	h.appendRaw(name, quoted, comment, false)
}

// Reserves room for n additional cards so later tooling can extend the
// header without rewriting the data unit.
func (h *Header) Reserve(n int) {
	h.reserve = n
}

// Appends a fixed-format card with the value right-justified in the
// value field.
func (h *Header) append(name, value, comment string) {
	h.appendRaw(name, value, comment, true)
}

func (h *Header) appendRaw(name, value, comment string, rightJustify bool) {
	var body string
	if rightJustify {
		body = fmt.Sprintf("%-8s= %20s", name, value)
	} else {
		body = fmt.Sprintf("%-8s= %s", name, value)
	}
	if comment != "" {
		body += " / " + comment
	}
	if len(body) > cardSize {
		body = body[:cardSize]
	}
	h.cards = append(h.cards, card(body+strings.Repeat(" ", cardSize-len(body))))
}

// Writes the header unit: all cards, reserved blanks, the END card, and
// space padding to the record boundary.
func (h *Header) Write(w io.Writer) error {
	var b strings.Builder

	for _, c := range h.cards {
		b.WriteString(string(c))
	}
	blank := strings.Repeat(" ", cardSize)
	for i := 0; i < h.reserve; i++ {
		b.WriteString(blank)
	}
	b.WriteString("END" + strings.Repeat(" ", cardSize-3))

	if pad := b.Len() % RecordSize; pad != 0 {
		b.WriteString(strings.Repeat(" ", RecordSize-pad))
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("%w: header: %v", ErrEncode, err)
	}
	return nil
}

// Writes the 16-bit data unit: each pixel offset-encoded as a big-endian
// signed value, zero-padded to the record boundary.
func WriteImage(w io.Writer, pixels []uint16) error {
	buf := make([]byte, len(pixels)*2)
	for i, p := range pixels {
		binary.BigEndian.PutUint16(buf[i*2:], uint16(int32(p)-pixelOffset))
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: data: %v", ErrEncode, err)
	}

	if pad := len(buf) % RecordSize; pad != 0 {
		if _, err := w.Write(make([]byte, RecordSize-pad)); err != nil {
			return fmt.Errorf("%w: padding: %v", ErrEncode, err)
		}
	}
	return nil
}
