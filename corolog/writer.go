package corolog

import (
	"context"
	"io"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// BufferedWriter coalesces log lines written in a short window into a
// single underlying Write call via github.com/joeycumines/go-microbatch,
// trading a small amount of latency for fewer syscalls under log bursts
// (e.g. a busy reactor logging one retry warning per descriptor).
type BufferedWriter struct {
	batcher *microbatch.Batcher[[]byte]
}

// NewBufferedWriter wraps w, flushing whenever maxLines lines have
// accumulated or flushInterval has elapsed since the first unflushed
// line, whichever comes first.
func NewBufferedWriter(w io.Writer, maxLines int, flushInterval time.Duration) *BufferedWriter {
	bw := &BufferedWriter{}
	bw.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       maxLines,
		FlushInterval: flushInterval,
	}, func(_ context.Context, lines [][]byte) error {
		var buf []byte
		for _, line := range lines {
			buf = append(buf, line...)
		}
		_, err := w.Write(buf)
		return err
	})
	return bw
}

// Write implements io.Writer. It copies p (zerolog reuses its buffer
// across calls) and blocks until the line has actually been flushed to
// the underlying writer.
func (bw *BufferedWriter) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)

	result, err := bw.batcher.Submit(context.Background(), line)
	if err != nil {
		return 0, err
	}
	if err := result.Wait(context.Background()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes any pending lines and stops the batcher.
func (bw *BufferedWriter) Close() error {
	return bw.batcher.Close()
}
