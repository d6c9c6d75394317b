package flows

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"  Alice@Example.COM ", "alice@example.com"},
		{"\tBOB@x.io\n", "bob@x.io"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidEmailAndCode(t *testing.T) {
	for _, e := range []string{"a@b.co", "first.last@sub.example.org"} {
		if !ValidEmail(e) {
			t.Fatalf("expected %q to be valid", e)
		}
	}
	for _, e := range []string{"", "a@b", "Alice <a@b.co>", "@b.co", "a@.co", "a@b."} {
		if ValidEmail(e) {
			t.Fatalf("expected %q to be rejected", e)
		}
	}
	if !ValidCode("0421") || ValidCode("421") || ValidCode("04a1") || ValidCode("04211") {
		t.Fatal("unexpected code validation")
	}
}
