package otp

import "testing"

func TestGenerateLengthAndRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
		if code[0] == '0' {
			t.Fatalf("leading zero in code %q", code)
		}
	}
}

func TestGenerateRejectsBadDigits(t *testing.T) {
	if _, err := Generate(0); err == nil {
		t.Fatal("expected error for 0 digits")
	}
	if _, err := Generate(19); err == nil {
		t.Fatal("expected error for 19 digits")
	}
}

func TestMatchExact(t *testing.T) {
	if !Match("482913", "482913") {
		t.Fatal("expected exact match")
	}
	if Match("482913", "000000") {
		t.Fatal("expected mismatch")
	}
	if Match("482913", "48291") {
		t.Fatal("prefix must not match")
	}
	if Match("", "") {
		t.Fatal("empty stored code must never match")
	}
}
