package cache

import "testing"

func TestKey(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		want        string
	}{
		{
			name:        "hex fingerprint",
			fingerprint: "9f86d081884c7d65",
			want:        "gemini_mind:9f86d081884c7d65",
		},
		{
			name:        "empty fingerprint",
			fingerprint: "",
			want:        "gemini_mind:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.fingerprint); got != tt.want {
				t.Errorf("Key() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"gemini_mind:abc", "abc", true},
		{"other:abc", "other:abc", false},
		{"gemini_mindabc", "gemini_mindabc", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := Fingerprint(tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Fingerprint(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestKeyPattern(t *testing.T) {
	if got := keyPattern(); got != "gemini_mind:*" {
		t.Errorf("keyPattern() = %q, want %q", got, "gemini_mind:*")
	}
}
