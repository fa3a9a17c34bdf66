package debug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

const displayWidth = 16

// FormatPayload renders a frame in two columns, one for bytes and the
// other for their ascii representation, for packet logging.
func FormatPayload(data []uint8) string {
	var b strings.Builder
	for rem, offset := len(data), 0; rem > 0; rem -= displayWidth {
		if rem < displayWidth {
			formatPacketLine(&b, data[(len(data)-rem):], rem, offset)
		} else {
			formatPacketLine(&b, data[offset:offset+displayWidth], displayWidth, offset)
		}
		offset += displayWidth
	}
	return b.String()
}

// FormatDecoded renders a decoded request struct for packet logging.
func FormatDecoded(v interface{}) string {
	return spew.Sdump(v)
}

func formatPacketLine(b *strings.Builder, data []uint8, length int, offset int) {
	fmt.Fprintf(b, "(%04X) ", offset)
	for i, j := 0, 0; i < length; i++ {
		if j == 8 {
			// Visual aid - spacing between groups of 8 bytes.
			j = 0
			b.WriteString("  ")
		}
		fmt.Fprintf(b, "%02x ", data[i])
		j++
	}
	// Fill in the gap if we don't have enough bytes to fill the line.
	for i := length; i < displayWidth; i++ {
		if i == 8 {
			b.WriteString("  ")
		}
		b.WriteString("   ")
	}
	b.WriteString("    ")
	// Display the print characters as-is, others as periods.
	for i := 0; i < length; i++ {
		c := data[i]
		if strconv.IsPrint(rune(c)) {
			fmt.Fprintf(b, "%c", data[i])
		} else {
			b.WriteString(".")
		}
	}
	b.WriteString("\n")
}
