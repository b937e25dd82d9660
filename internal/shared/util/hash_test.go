package util

import "testing"

func TestHashOwnerKeyStable(t *testing.T) {
	a := HashOwnerKey("user-1")
	b := HashOwnerKey("user-1")
	if a != b {
		t.Fatalf("expected stable hash, got %q and %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestHashOwnerKeyDistinct(t *testing.T) {
	if HashOwnerKey("user-1") == HashOwnerKey("user-2") {
		t.Fatalf("expected different owners to hash differently")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: " checkup 2026.png ", want: "checkup 2026.png"},
		{in: "a/b.pdf", want: "a_b.pdf"},
		{in: "a\\b.jpg", want: "a_b.jpg"},
		{in: "../../etc/passwd", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := SanitizeFileName(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SanitizeFileName(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
