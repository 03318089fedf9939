// Package envelope derives the mbox "From " separator line of a raw message.
//
// Only the header block is inspected, and only with regular expressions: the
// body is never decoded, so the bytes written to the archive are exactly the
// bytes read from disk.
package envelope

import (
	"bytes"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// UnknownSender is used when no address can be found in the header block.
const UnknownSender = "unknown"

var (
	utf8BOM      = []byte("\xef\xbb\xbf")
	fromPrefix   = []byte("From ")
	mailerDaemon = []byte("MAILER-DAEMON")
	crlfBlank    = []byte("\r\n\r\n")
	lfBlank      = []byte("\n\n")
)

var (
	fromFieldRE       = regexp.MustCompile(`(?im)^from:[ \t]*(.*(?:\r?\n[ \t].*)*)`)
	returnPathFieldRE = regexp.MustCompile(`(?im)^return-path:[ \t]*(.*(?:\r?\n[ \t].*)*)`)
	dateFieldRE       = regexp.MustCompile(`(?im)^date:[ \t]*(.*(?:\r?\n[ \t].*)*)`)
	foldRE            = regexp.MustCompile(`\r?\n[ \t]+`)
	angleAddrRE       = regexp.MustCompile(`<\s*([^<>\s]+)\s*>`)
	bareAddrRE        = regexp.MustCompile(`[^\s<>()\[\],;:"@]+@[^\s<>()\[\],;:"@]+`)
)

// Envelope is the synthetic sender/date pair written before each message.
type Envelope struct {
	Sender string
	Date   string
}

// Line renders the envelope as an mbox separator line. Runes outside ASCII
// are replaced by '?'.
func (e Envelope) Line() []byte {
	line := "From " + e.Sender + " " + e.Date + "\n"
	out, _, err := transform.String(toASCII(), line)
	if err != nil {
		out = line
	}
	return []byte(out)
}

// Prepare strips a leading UTF-8 byte order mark and an existing mbox
// separator line. The separator is only dropped when it looks like a real
// one, i.e. it carries an address or MAILER-DAEMON.
func Prepare(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !bytes.HasPrefix(raw, fromPrefix) {
		return raw
	}

	first, rest := raw, raw[len(raw):]
	if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
		first, rest = raw[:idx], raw[idx+1:]
	}
	if bytes.IndexByte(first, '@') >= 0 || bytes.Contains(first, mailerDaemon) {
		return rest
	}
	return raw
}

// SplitHeader splits a raw message at the first blank line. Without a blank
// line the whole message is the header block.
func SplitHeader(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	idx, sep := -1, 0
	if i := bytes.Index(raw, crlfBlank); i >= 0 {
		idx, sep = i, len(crlfBlank)
	}
	if i := bytes.Index(raw, lfBlank); i >= 0 && (idx < 0 || i < idx) {
		idx, sep = i, len(lfBlank)
	}
	if idx < 0 {
		return raw, nil
	}
	return raw[:idx], raw[idx+sep:]
}

// Extractor builds envelopes. Now supplies the fallback timestamp and
// defaults to time.Now.
type Extractor struct {
	Now func() time.Time
}

// Extract builds the envelope of a raw message using the current time as
// date fallback.
func Extract(raw []byte) Envelope {
	return (&Extractor{}).Extract(raw)
}

// Extract never fails: a missing sender becomes UnknownSender and a missing
// or unparsable date becomes the current local time.
func (e *Extractor) Extract(raw []byte) Envelope {
	header, _ := SplitHeader(Prepare(raw))
	text := decodeHeader(header)

	sender := senderFrom(text)
	if sender == "" {
		sender = UnknownSender
	}

	date, ok := dateFrom(text)
	if !ok {
		date = e.now()
	}

	return Envelope{Sender: sender, Date: date.Format(time.ANSIC)}
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func senderFrom(header string) string {
	for _, match := range fromFieldRE.FindAllStringSubmatch(header, -1) {
		value := unfold(match[1])
		if m := angleAddrRE.FindStringSubmatch(value); m != nil {
			return m[1]
		}
		if addr := bareAddrRE.FindString(value); addr != "" {
			return addr
		}
	}

	for _, match := range returnPathFieldRE.FindAllStringSubmatch(header, -1) {
		value := unfold(match[1])
		if m := angleAddrRE.FindStringSubmatch(value); m != nil {
			return m[1]
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		if addr := strings.Trim(fields[0], "<>"); addr != "" {
			return addr
		}
	}

	return ""
}

func dateFrom(header string) (time.Time, bool) {
	match := dateFieldRE.FindStringSubmatch(header)
	if match == nil {
		return time.Time{}, false
	}
	value := unfold(match[1])
	if value == "" {
		return time.Time{}, false
	}

	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC(), true
	}
	if t, ok := parseLenient(value); ok {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// parseLenient retries dates written by broken mailers. Only values that
// carry a month or zone name and a clock time are retried; bare numbers and
// slash dates are not message dates. dateparse can panic on malformed input.
func parseLenient(value string) (t time.Time, ok bool) {
	if !strings.ContainsRune(value, ':') || !strings.ContainsFunc(value, isASCIILetter) {
		return time.Time{}, false
	}
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseStrict(value)
	if err != nil || parsed.Year() < 1 || parsed.Year() > 9999 {
		return time.Time{}, false
	}
	return parsed, true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func unfold(value string) string {
	return strings.TrimSpace(foldRE.ReplaceAllString(value, " "))
}

// decodeHeader reads the header block as ASCII. Any other rune, and any
// ill-formed byte, becomes U+FFFD.
func decodeHeader(header []byte) string {
	t := runes.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return utf8.RuneError
		}
		return r
	})
	out, _, err := transform.Bytes(t, header)
	if err != nil {
		return strings.ToValidUTF8(string(header), string(utf8.RuneError))
	}
	return string(out)
}

func toASCII() transform.Transformer {
	return runes.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	})
}
