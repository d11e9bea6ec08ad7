// Package testing holds fakes and helpers shared by the cardtpl test suites.
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ErrWriteFailed is returned by FailingWriter and LimitedWriter.
var ErrWriteFailed = errors.New("write failed")

// FailingWriter fails every write.
type FailingWriter struct{}

func (FailingWriter) Write(p []byte) (int, error) {
	return 0, ErrWriteFailed
}

// LimitedWriter passes through the first n writes to target and fails the rest.
type LimitedWriter struct {
	n      int
	target io.Writer
}

func NewLimitedWriter(n int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{n: n, target: target}
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, ErrWriteFailed
	}
	l.n--
	return l.target.Write(p)
}

// StubTransport answers every request with the same response or error and records what it saw.
type StubTransport struct {
	mu       sync.Mutex
	response *http.Response
	err      error
	requests []*http.Request
}

func NewStubTransport(resp *http.Response, err error) *StubTransport {
	return &StubTransport{response: resp, err: err}
}

func (s *StubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.response, s.err
}

// Requests returns the requests seen so far.
func (s *StubTransport) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// JSONResponse builds a response with a JSON body.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// FailingBody is a response body whose reads fail.
type FailingBody struct{}

func (FailingBody) Read(p []byte) (int, error) {
	return 0, errors.New("read failed")
}

func (FailingBody) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// MustWriteFile writes body to name inside a fresh temp dir and returns the path.
func MustWriteFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}
