package transcode

import (
	"bytes"
	"testing"
)

func TestTranscode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain message gets one blank line",
			raw:  "Subject: x\n\nHello\n",
			want: "Subject: x\n\nHello\n\n",
		},
		{
			name: "missing final newline",
			raw:  "Subject: x\n\nHello",
			want: "Subject: x\n\nHello\n\n",
		},
		{
			name: "already padded",
			raw:  "Subject: x\n\nHello\n\n",
			want: "Subject: x\n\nHello\n\n",
		},
		{
			name: "crlf normalized",
			raw:  "Subject: x\r\n\r\nline one\r\nline two\r\n",
			want: "Subject: x\n\nline one\nline two\n\n",
		},
		{
			name: "from line quoted",
			raw:  "Subject: x\n\nFrom spoof@example.com\nok\n",
			want: "Subject: x\n\n>From spoof@example.com\nok\n\n",
		},
		{
			name: "quoted from line quoted again",
			raw:  "Subject: x\n\n>From already-quoted\n>>From twice\n",
			want: "Subject: x\n\n>>From already-quoted\n>>>From twice\n\n",
		},
		{
			name: "from in first line",
			raw:  "From nobody\nSubject: x\n\nbody\n",
			want: ">From nobody\nSubject: x\n\nbody\n\n",
		},
		{
			name: "crlf from line quoted",
			raw:  "Subject: x\r\n\r\nFrom here on\r\n",
			want: "Subject: x\n\n>From here on\n\n",
		},
		{
			name: "only line start matches",
			raw:  "Subject: x\n\n  From indented\nsay From here\nFrom: header-like\nfrom lower\n>> From spaced\n",
			want: "Subject: x\n\n  From indented\nsay From here\nFrom: header-like\nfrom lower\n>> From spaced\n\n",
		},
		{
			name: "non-ascii passes through",
			raw:  "Subject: x\n\n\xe4\xf6\xfc \xc3\xa4\xc3\xb6\n\x00\xff",
			want: "Subject: x\n\n\xe4\xf6\xfc \xc3\xa4\xc3\xb6\n\x00\xff\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transcode([]byte(tt.raw))
			if string(got) != tt.want {
				t.Errorf("Transcode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranscodeDoesNotModifyInput(t *testing.T) {
	raw := []byte("Subject: x\r\n\r\nFrom spoof@example.com")
	orig := append([]byte(nil), raw...)

	_ = Transcode(raw)

	if !bytes.Equal(raw, orig) {
		t.Fatalf("input modified: %q", raw)
	}
}

func TestTranscodeNoCarriageReturnLineEndings(t *testing.T) {
	raw := []byte("A: b\r\nC: d\r\n\r\none\r\ntwo\r\n\r\n")
	got := Transcode(raw)
	if bytes.Contains(got, []byte("\r\n")) {
		t.Fatalf("CRLF left in output: %q", got)
	}
	if !bytes.HasSuffix(got, []byte("two\n\n")) || bytes.HasSuffix(got, []byte("\n\n\n")) {
		t.Fatalf("unexpected padding: %q", got)
	}
}

func TestPad(t *testing.T) {
	tests := map[string]string{
		"":        "\n\n",
		"x":       "x\n\n",
		"x\n":     "x\n\n",
		"x\n\n":   "x\n\n",
		"x\n\n\n": "x\n\n\n",
		"\n":      "\n\n",
	}
	for in, want := range tests {
		if got := string(Pad([]byte(in))); got != want {
			t.Errorf("Pad(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		stored string
		want   string
	}{
		{">From spoof@example.com\n", "From spoof@example.com\n"},
		{">>From already-quoted\n", ">From already-quoted\n"},
		{"a\n>From b\n>From: c\n", "a\nFrom b\n>From: c\n"},
		{"From: alice\n\n> From quoted reply\n", "From: alice\n\n> From quoted reply\n"},
	}

	for _, tt := range tests {
		if got := string(Unescape([]byte(tt.stored))); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.stored, got, tt.want)
		}
	}

	raw := "From: a@x.com\n\nFrom x\n>From y\n>>From z\n"
	if got := string(Unescape(Transcode([]byte(raw)))); got != raw+"\n" {
		t.Errorf("Unescape(Transcode(raw)) = %q, want %q", got, raw+"\n")
	}
}
