package output

import (
	"fmt"
	"io"
	"strings"
)

// HexDump writes data sixteen bytes per line, each line prefixed with its
// absolute address. Negative addresses are shown with a minus sign.
func HexDump(w io.Writer, start int64, data []byte) error {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		line := data[off:end]

		b.Reset()
		if addr := start + int64(off); addr < 0 {
			fmt.Fprintf(&b, "-%07x  ", -addr)
		} else {
			fmt.Fprintf(&b, "%08x  ", addr)
		}
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&b, "%02x ", line[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range line {
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			b.WriteByte(c)
		}
		b.WriteString("|\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
