package memory_test

import (
	"bytes"
	"log/slog"
	"sync"
)

// syncBuffer is a thread-safe bytes.Buffer for log assertions.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), buf
}

const threeFacts = "```json\n[" +
	`{"shouldWrite":true,"content":"The user's name is John.","confidence":0.95,"category":"personal","tags":["name"]},` +
	`{"shouldWrite":true,"content":"The user is 35 years old.","confidence":0.9,"category":"personal","tags":["age"]},` +
	`{"shouldWrite":true,"content":"The user works as a software engineer.","confidence":0.9,"category":"work","tags":["profession"]}` +
	"]\n```"
