package routeros

import (
	"bufio"
	"fmt"
	"io"
)

// Word length prefixes follow the RouterOS API framing: the high bits of the
// first byte select how many bytes encode the length.
const (
	len1Max = 0x80
	len2Max = 0x4000
	len3Max = 0x200000
	len4Max = 0x10000000
)

// writeLength encodes a word length in the RouterOS variable-width format.
func writeLength(w *bufio.Writer, n int) error {
	switch {
	case n < len1Max:
		return w.WriteByte(byte(n))
	case n < len2Max:
		if err := w.WriteByte(byte(n>>8) | 0x80); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	case n < len3Max:
		if err := w.WriteByte(byte(n>>16) | 0xC0); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	case n < len4Max:
		if err := w.WriteByte(byte(n>>24) | 0xE0); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 16)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	default:
		if err := w.WriteByte(0xF0); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 24)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 16)); err != nil {
			return err
		}
		if err := w.WriteByte(byte(n >> 8)); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	}
}

// readLength decodes a variable-width word length. A record is only complete
// once its full length-prefixed encoding has been consumed, so every read goes
// through the buffered reader and may span multiple network reads.
func readLength(r *bufio.Reader) (int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	var n int
	var extra int

	switch {
	case b&0x80 == 0x00:
		return int(b), nil
	case b&0xC0 == 0x80:
		n = int(b & 0x3F)
		extra = 1
	case b&0xE0 == 0xC0:
		n = int(b & 0x1F)
		extra = 2
	case b&0xF0 == 0xE0:
		n = int(b & 0x0F)
		extra = 3
	case b == 0xF0:
		n = 0
		extra = 4
	default:
		return 0, &ProtocolError{Reason: fmt.Sprintf("invalid length prefix 0x%02X", b)}
	}

	for i := 0; i < extra; i++ {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		n = n<<8 | int(b)
	}
	return n, nil
}

// writeSentence writes the words followed by the empty terminator word.
func writeSentence(w *bufio.Writer, words []string) error {
	for _, word := range words {
		if err := writeLength(w, len(word)); err != nil {
			return err
		}
		if _, err := w.WriteString(word); err != nil {
			return err
		}
	}
	if err := writeLength(w, 0); err != nil {
		return err
	}
	return w.Flush()
}

// readSentence reads words until the empty terminator.
func readSentence(r *bufio.Reader) ([]string, error) {
	var words []string
	for {
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return words, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		words = append(words, string(buf))
	}
}
