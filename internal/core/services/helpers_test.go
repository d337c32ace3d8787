package services_test

import (
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journal records calls from several mocks so tests can assert their relative order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// indexOf returns the position of the first entry equal to s, or -1.
func (j *journal) indexOf(s string) int {
	for i, e := range j.list() {
		if e == s {
			return i
		}
	}
	return -1
}
