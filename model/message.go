package model

// SkipReason explains why a readable message was left out of the archive.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipFiltered  SkipReason = "filtered"
	SkipDuplicate SkipReason = "duplicate"
)

// Message is a single .eml file converted into an mbox record.
type Message struct {
	Index    int
	Path     string
	Sender   string
	Date     string
	Envelope []byte
	Body     []byte
	Size     int64
	Hash     string
}

// Result wraps a message alongside an optional error encountered while converting it.
type Result struct {
	Message Message
	Err     error
	Skip    SkipReason
}
