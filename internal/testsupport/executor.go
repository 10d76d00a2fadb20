package testsupport

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// StubExecutor answers short-lived CLI invocations from canned outputs keyed
// by the space-joined argument list.
type StubExecutor struct {
	mu      sync.Mutex
	calls   [][]string
	envs    [][]string
	outputs map[string][]string
	errs    map[string]error
}

// NewStubExecutor returns an executor with no canned outputs.
func NewStubExecutor() *StubExecutor {
	return &StubExecutor{outputs: map[string][]string{}, errs: map[string]error{}}
}

// Queue appends outputs returned for args in order; the last one repeats.
func (s *StubExecutor) Queue(args string, outputs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[args] = append(s.outputs[args], outputs...)
}

// Fail makes every invocation of args return err.
func (s *StubExecutor) Fail(args string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[args] = err
}

func (s *StubExecutor) Run(_ context.Context, _ string, args []string, env []string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.Join(args, " ")
	s.calls = append(s.calls, append([]string(nil), args...))
	s.envs = append(s.envs, env)
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	outs := s.outputs[key]
	if len(outs) == 0 {
		return nil, errors.New("no stub output for " + key)
	}
	out := outs[0]
	if len(outs) > 1 {
		s.outputs[key] = outs[1:]
	}
	return []byte(out), nil
}

// Calls returns every invocation as a space-joined argument string.
func (s *StubExecutor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		out = append(out, strings.Join(call, " "))
	}
	return out
}

// CallCount reports how often args was invoked.
func (s *StubExecutor) CallCount(args string) int {
	n := 0
	for _, call := range s.Calls() {
		if call == args {
			n++
		}
	}
	return n
}

// Envs returns the environment passed to each invocation.
func (s *StubExecutor) Envs() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.envs...)
}
