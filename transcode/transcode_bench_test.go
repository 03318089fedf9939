package transcode

import (
	"bytes"
	"testing"
)

// BenchmarkTranscode runs a ~1 MiB CRLF message with quoted lines through the transcoder
func BenchmarkTranscode(b *testing.B) {
	var buf bytes.Buffer
	buf.WriteString("From: test@example.com\r\nSubject: big\r\n\r\n")
	for buf.Len() < 1<<20 {
		buf.WriteString("Some ordinary line of body text that goes on for a while.\r\n")
		buf.WriteString("From the archives: a line that needs quoting\r\n")
	}
	raw := buf.Bytes()

	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Transcode(raw)
	}
}
