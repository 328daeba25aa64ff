package viewer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/JonMunkholm/jsonview/internal/protocol"
)

// Client drives a protocol worker: it writes requests to w, applies the
// responses read from r to a Model, and sends the follow-up requests the
// model asks for.
type Client struct {
	logger *slog.Logger

	wmu    sync.Mutex
	enc    *json.Encoder
	nextID int

	mu      sync.Mutex
	model   *Model
	changed chan struct{}
	readErr error
	done    bool
}

// NewClient starts reading responses from r in the background. The reader
// stops at end of input.
func NewClient(r io.Reader, w io.Writer, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		logger:  logger,
		enc:     json.NewEncoder(w),
		model:   NewModel(opts),
		changed: make(chan struct{}),
	}
	go c.read(r)
	return c
}

func (c *Client) read(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), protocol.DefaultOptions().MaxLineBytes)
	for sc.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			c.logger.Warn("malformed response", "error", err)
			continue
		}

		c.mu.Lock()
		follow := c.model.Apply(resp)
		c.notifyLocked()
		c.mu.Unlock()

		if len(follow) > 0 {
			// Sent from another goroutine so a worker blocked on writing
			// to us cannot block us writing to it.
			go c.sendAll(follow)
		}
	}

	c.mu.Lock()
	c.readErr = sc.Err()
	c.done = true
	c.notifyLocked()
	c.mu.Unlock()
}

func (c *Client) sendAll(reqs []protocol.Request) {
	for _, req := range reqs {
		if err := c.Send(req); err != nil {
			c.logger.Warn("failed to send follow-up request", "type", req.Type, "error", err)
		}
	}
}

func (c *Client) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Send writes req, assigning it an ID when it has none.
func (c *Client) Send(req protocol.Request) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if req.ID == "" {
		c.nextID++
		req.ID = strconv.Itoa(c.nextID)
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	return nil
}

// View calls fn with the model. fn must not keep the model or call back
// into the client.
func (c *Client) View(fn func(m *Model)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.model)
}

// Update calls fn with the model and sends the request it returns, if any.
func (c *Client) Update(fn func(m *Model) (protocol.Request, bool)) error {
	c.mu.Lock()
	req, ok := fn(c.model)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Send(req)
}

// WaitFor blocks until cond holds for the model. It fails when the worker
// stops responding before that.
func (c *Client) WaitFor(ctx context.Context, cond func(m *Model) bool) error {
	for {
		c.mu.Lock()
		if cond(c.model) {
			c.mu.Unlock()
			return nil
		}
		if c.done {
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("worker closed: %w", err)
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Open starts the full pass over the file at path.
func (c *Client) Open(path string, turbo bool) error {
	return c.Send(protocol.Request{Type: protocol.StartFull, Path: path, Turbo: turbo})
}

// OpenInput starts the full pass over an inline document.
func (c *Client) OpenInput(input string, turbo bool) error {
	return c.Send(protocol.Request{Type: protocol.StartFull, Input: &input, Turbo: turbo})
}

// Search sends or holds a search for term and waits for its result.
func (c *Client) Search(ctx context.Context, term string) error {
	if err := c.Update(func(m *Model) (protocol.Request, bool) { return m.Search(term) }); err != nil {
		return err
	}
	return c.WaitFor(ctx, func(m *Model) bool { return !m.Searching() })
}

// LoadAll requests pages until the last one has arrived.
func (c *Client) LoadAll(ctx context.Context) error {
	return c.LoadUntil(ctx, -1)
}

// LoadUntil requests pages until at least n rows are held or the last
// page has arrived. n < 0 loads everything.
func (c *Client) LoadUntil(ctx context.Context, n int) error {
	for {
		var done bool
		var pages int
		if err := c.Update(func(m *Model) (protocol.Request, bool) {
			done = m.Ended() || m.Err() != nil || (n >= 0 && !m.Partial() && m.Loaded() >= n)
			pages = m.pages
			if done {
				return protocol.Request{}, false
			}
			return m.NextPage()
		}); err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := c.WaitFor(ctx, func(m *Model) bool {
			return m.Ended() || m.Err() != nil || m.pages != pages
		}); err != nil {
			return err
		}
	}
}
