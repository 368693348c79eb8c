package utils

import (
	"fmt"
	"strings"
)

func BoolToString(b bool) string {
	if b {
		return "connected"
	}
	return "not connected"
}

func OnOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// FormatDataForLog renders raw serial bytes for a log line: printable ASCII as is,
// control characters escaped, and a hex dump when nothing printable is left.
func FormatDataForLog(data []byte) string {
	if len(data) == 0 {
		return "no data"
	}

	var sb strings.Builder
	printable := 0
	for _, b := range data {
		switch {
		case b >= 32 && b <= 126:
			sb.WriteByte(b)
			printable++
		case b == '\n':
			sb.WriteString(`\n`)
		case b == '\r':
			sb.WriteString(`\r`)
		case b == '\t':
			sb.WriteString(`\t`)
		default:
			fmt.Fprintf(&sb, `\x%02X`, b)
		}
	}

	if printable == 0 {
		hexStr := make([]string, len(data))
		for i, b := range data {
			hexStr[i] = fmt.Sprintf("0x%02X", b)
		}
		return fmt.Sprintf("[%s] (%d bytes)", strings.Join(hexStr, " "), len(data))
	}

	return fmt.Sprintf("%q (%d bytes)", sb.String(), len(data))
}
