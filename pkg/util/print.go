package util

import (
	"fmt"
	"io"
	"strings"
)

const kBytesPerDumpLine = 16

func printable(c byte) byte {
	if c < 32 || c > 126 {
		return '.'
	}
	return c
}

// ToPrintableString replaces every byte outside printable ASCII with '.'.
func ToPrintableString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	buf := make([]byte, len(b))
	for i, c := range b {
		buf[i] = printable(c)
	}
	return string(buf)
}

func ToHexString(data []byte) string {
	return fmt.Sprintf("%X", data)
}

func ToPrintableAndHexString(data []byte) string {
	return fmt.Sprintf("%s [%X]", ToPrintableString(data), data)
}

// HexDump writes data as offset, hex bytes and printable characters, 16
// bytes a line.
func HexDump(w io.Writer, data []byte) {
	var sb strings.Builder
	sb.WriteString("          ")
	for i := 0; i < kBytesPerDumpLine; i++ {
		fmt.Fprintf(&sb, " %X ", i)
	}
	sb.WriteString(" ")
	for i := 0; i < kBytesPerDumpLine; i++ {
		fmt.Fprintf(&sb, "%X", i)
	}
	sb.WriteByte('\n')

	for off := 0; off < len(data); off += kBytesPerDumpLine {
		line := data[off:]
		if len(line) > kBytesPerDumpLine {
			line = line[:kBytesPerDumpLine]
		}
		fmt.Fprintf(&sb, "%09X ", off)
		for _, c := range line {
			fmt.Fprintf(&sb, "%02X ", c)
		}
		sb.WriteString(strings.Repeat("   ", kBytesPerDumpLine-len(line)))
		sb.WriteByte(' ')
		for _, c := range line {
			sb.WriteByte(printable(c))
		}
		sb.WriteByte('\n')
	}
	io.WriteString(w, sb.String())
}
