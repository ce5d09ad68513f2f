package sink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirSend(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	if err := d.Send("logs/droidmon.log", []byte("hello")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "logs", "droidmon.log"))
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("artifact content = %q", data)
	}

	// names cannot escape the root
	if err := d.Send("../../escape.log", []byte("x")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.log")); err != nil {
		t.Errorf("expected escaping name to be confined to root: %v", err)
	}

	if err := d.Send("", nil); err == nil {
		t.Errorf("expected error for empty name")
	}
}

func TestMemorySend(t *testing.T) {
	m := NewMemory()
	content := []byte("abc")
	_ = m.Send("a", content)
	content[0] = 'x'

	got, ok := m.Get("a")
	if !ok || string(got) != "abc" {
		t.Errorf("Get(a) = %q, %v", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d", m.Len())
	}
}
