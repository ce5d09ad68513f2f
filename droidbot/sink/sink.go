// Package sink collects named result blobs produced during an automation run.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type Sink interface {
	Send(name string, content []byte) error
}

// Dir writes every blob to Root/name.
type Dir struct {
	Root string
}

func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) Send(name string, content []byte) error {
	clean := filepath.Clean("/" + name)
	if clean == "/" {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(d.Root, strings.TrimPrefix(clean, "/"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	log.Debug().Str("artifact", name).Int("bytes", len(content)).Msg("[Sink] artifact stored")
	return nil
}

// Memory keeps blobs in memory.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Send(name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = append([]byte(nil), content...)
	return nil
}

func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	return b, ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
