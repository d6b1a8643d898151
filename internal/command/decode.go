package command

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// streamDecoder decodes UTF-8 incrementally across arbitrary chunk
// boundaries. A multi-byte sequence split between chunks is carried over and
// decoded once complete; invalid bytes become U+FFFD instead of an error.
type streamDecoder struct {
	dec   transform.Transformer
	carry []byte
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{dec: unicode.UTF8.NewDecoder()}
}

// decode consumes the next chunk and returns whatever text is complete so
// far. Pass atEOF=true on the final call to flush any truncated tail as a
// replacement rune.
func (d *streamDecoder) decode(chunk []byte, atEOF bool) string {
	d.carry = append(d.carry, chunk...)
	if len(d.carry) == 0 {
		return ""
	}

	var out strings.Builder
	dst := make([]byte, len(d.carry)+utf8.UTFMax)
	for {
		nDst, nSrc, err := d.dec.Transform(dst, d.carry, atEOF)
		out.Write(dst[:nDst])
		d.carry = d.carry[nSrc:]
		if err == transform.ErrShortDst {
			continue
		}
		// nil: everything consumed. ErrShortSrc: a partial rune stays in
		// carry until the next chunk completes it.
		break
	}
	d.carry = append([]byte(nil), d.carry...)
	return out.String()
}
