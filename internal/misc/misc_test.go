package misc

import "testing"

func TestStringLimit(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"Electric Picnic", 20, "Electric Picnic"},
		{"Electric Picnic", 10, "Electri..."},
		{"Electric Picnic", 3, "Ele"},
		{"ab", 3, "ab"},
		{"abc", -1, ""},
	}
	for _, tt := range tests {
		if got := StringLimit(tt.s, tt.n); got != tt.want {
			t.Fatalf("StringLimit(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestBytesLimitDoesNotClobberInput(t *testing.T) {
	in := []byte("0123456789")
	got := BytesLimit(in, 6)
	if string(got) != "012..." {
		t.Fatalf("BytesLimit = %q", got)
	}
	if string(in) != "0123456789" {
		t.Fatalf("input modified: %q", in)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(0, 1, 5); got != 1 {
		t.Fatalf("Clamp low = %d", got)
	}
	if got := Clamp(9, 1, 5); got != 5 {
		t.Fatalf("Clamp high = %d", got)
	}
	if got := Clamp(3, 1, 5); got != 3 {
		t.Fatalf("Clamp mid = %d", got)
	}
}
