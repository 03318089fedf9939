// Package transcode turns a raw message into an mboxrd record body.
package transcode

import (
	"bytes"
	"regexp"
)

var (
	crlf = []byte("\r\n")
	lf   = []byte("\n")

	// A line starting with zero or more '>' followed by "From ".
	fromLineRE = regexp.MustCompile(`(?m)^>*From `)

	quotedFromLineRE = regexp.MustCompile(`(?m)^>(>*From )`)
)

// Transcode normalizes line endings to LF, quotes every line matching
// ^>*From  with one more '>', and pads the result so that it ends with
// exactly one blank line. The input must already be stripped of any byte
// order mark and existing envelope line; it is not modified.
func Transcode(raw []byte) []byte {
	out := bytes.ReplaceAll(raw, crlf, lf)
	out = Escape(out)
	return Pad(out)
}

// Escape applies mboxrd quoting to LF-delimited content.
func Escape(content []byte) []byte {
	return fromLineRE.ReplaceAllFunc(content, func(match []byte) []byte {
		quoted := make([]byte, 0, len(match)+1)
		quoted = append(quoted, '>')
		return append(quoted, match...)
	})
}

// Unescape removes one level of mboxrd quoting from a stored record body.
func Unescape(content []byte) []byte {
	return quotedFromLineRE.ReplaceAll(content, []byte("$1"))
}

// Pad appends the newlines needed to terminate the last line and leave one
// blank separator line.
func Pad(content []byte) []byte {
	switch {
	case bytes.HasSuffix(content, []byte("\n\n")):
		return content
	case bytes.HasSuffix(content, lf):
		return append(content, '\n')
	default:
		return append(content, '\n', '\n')
	}
}
