package constants

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MENU", "KEYCODE_MENU"},
		{"back", "KEYCODE_BACK"},
		{"KEYCODE_HOME", "KEYCODE_HOME"},
		{"82", "82"},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadKeys(t *testing.T) {
	keys, err := LoadKeys()
	if err != nil {
		t.Fatalf("LoadKeys() error: %v", err)
	}
	if _, ok := keys["KEYCODE_BACK"]; !ok {
		t.Errorf("expected KEYCODE_BACK in key table")
	}
}
