// Package channeltest provides a scripted command channel for tests.
package channeltest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotScripted = errors.New("command not scripted")

// Reply is the canned result of one command.
type Reply struct {
	Output string
	Err    error
}

// Scripted answers commands by their space-joined command line. A command may
// have a queue of replies; the last one repeats once the queue is drained.
// Unknown commands fail with ErrNotScripted.
type Scripted struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   []string
	serial  string
	host    map[string][]Reply
}

func New() *Scripted {
	return &Scripted{
		replies: make(map[string][]Reply),
		host:    make(map[string][]Reply),
	}
}

// On scripts the output of a shell command.
func (s *Scripted) On(command string, output string) *Scripted {
	return s.Queue(command, Reply{Output: output})
}

// Fail scripts a failing shell command.
func (s *Scripted) Fail(command string, err error) *Scripted {
	return s.Queue(command, Reply{Err: err})
}

func (s *Scripted) Queue(command string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[command] = append(s.replies[command], replies...)
	return s
}

// OnHost scripts a host-side adb subcommand.
func (s *Scripted) OnHost(command string, output string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host[command] = append(s.host[command], Reply{Output: output})
	return s
}

func (s *Scripted) WithSerial(serial string) *Scripted {
	s.serial = serial
	return s
}

func (s *Scripted) Execute(ctx context.Context, args []string) ([]byte, error) {
	line := strings.Join(args, " ")
	return s.answer(s.replies, line, line)
}

func (s *Scripted) Host(ctx context.Context, args ...string) ([]byte, error) {
	line := strings.Join(args, " ")
	return s.answer(s.host, line, "host "+line)
}

func (s *Scripted) Serial() string {
	return s.serial
}

func (s *Scripted) answer(table map[string][]Reply, key, recorded string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recorded)

	queue, ok := table[key]
	if !ok || len(queue) == 0 {
		return nil, ErrNotScripted
	}
	reply := queue[0]
	if len(queue) > 1 {
		table[key] = queue[1:]
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return []byte(reply.Output), nil
}

// Calls returns every command line seen so far, in order. Host commands are
// prefixed with "host ".
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many times a command line was executed.
func (s *Scripted) Count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == command {
			n++
		}
	}
	return n
}
