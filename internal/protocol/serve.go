package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/jsonview/internal/core"
)

// Serve reads requests from r, one JSON object per line, and writes
// responses to w until r is exhausted or ctx is cancelled. At end of input
// it waits for outstanding requests and for the current document to
// finish ingesting, so a scripted client can send its requests and close
// its end of the pipe.
func Serve(ctx context.Context, r io.Reader, w io.Writer, svc *core.Service, opts Options, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultOptions().MaxLineBytes
	}
	d := NewDispatcher(svc, w, opts, logger)
	defer d.Close()

	type line struct {
		data []byte
		err  error
	}
	lines := make(chan line)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), opts.MaxLineBytes)
		for scanner.Scan() {
			data := bytes.Clone(scanner.Bytes())
			select {
			case lines <- line{data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	logger.Info("protocol worker started")
	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				logger.Info("input closed, draining")
				return d.Drain(ctx)
			}
			if l.err != nil {
				return fmt.Errorf("read request: %w", l.err)
			}
			lineNo++
			data := bytes.TrimSpace(l.data)
			if len(data) == 0 {
				continue
			}
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				d.fail("", fmt.Errorf("%w: line %d: %v", errInvalidRequest, lineNo, err))
				continue
			}
			d.Handle(ctx, req)
		}
	}
}
