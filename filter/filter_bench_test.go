package filter

import (
	"testing"
)

var (
	benchHeader = []byte("From: test@example.com\nTo: user@example.com\nSubject: Quarterly report\nX-Mailer: bench\n")
	benchBody   = []byte("Hi,\n\nthe quarterly report is attached. It contains important figures.\n\nRegards\n")
)

// BenchmarkFilter_Allows_NoFilters measures the pass-through path used by most conversions
func BenchmarkFilter_Allows_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}

// BenchmarkFilter_Allows_HeaderAndBody combines header and body include patterns
func BenchmarkFilter_Allows_HeaderAndBody(b *testing.B) {
	f, err := New(Options{
		IncludeHeader: []string{"From:.*@example\\.com", "Subject:.*report"},
		IncludeBody:   []string{"important.*figures"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}

// BenchmarkFilter_Allows_Exclude benchmarks a typical spam exclusion
func BenchmarkFilter_Allows_Exclude(b *testing.B) {
	f, err := New(Options{
		ExcludeHeader: []string{"(?i)^x-spam-flag: yes", "From:.*@spam\\.com"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Allows(benchHeader, benchBody)
	}
}
