package voicelive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callbridge/logging"
)

const (
	writeBufferSize = 512
	writeTimeout    = 10 * time.Second
)

// ErrClosed is returned by send methods after Close.
var ErrClosed = errors.New("voicelive: connection closed")

// DialOptions configures Dial.
type DialOptions struct {
	Endpoint   string // https:// or wss:// service root
	APIKey     string
	APIVersion string
	Model      string

	Attempts      int           // dial attempts before giving up, min 1
	Backoff       time.Duration // initial retry delay, doubled per attempt
	KeepAlive     time.Duration // ping period, 0 disables
	MaxMessageLen int64
}

// Client is a connection to the voice service. Incoming events are decoded
// on a dedicated read goroutine and delivered in arrival order on Events().
// All writes funnel through a single writer goroutine.
type Client struct {
	ws  *websocket.Conn
	log *logging.Logger

	writeChan chan []byte
	events    chan Event

	keepAlive time.Duration

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
}

// Dial connects to the realtime endpoint, retrying transient handshake
// failures with exponential backoff. Rate limiting (429) and server errors
// are retried; auth failures are not.
func Dial(ctx context.Context, opts DialOptions, log *logging.Logger) (*Client, error) {
	u, err := buildURL(opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{"api-key": []string{opts.APIKey}}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var ws *websocket.Conn
	for attempt := 1; ; attempt++ {
		var resp *http.Response
		ws, resp, err = websocket.DefaultDialer.DialContext(ctx, u, header)
		if err == nil {
			break
		}
		if !retryable(err, resp) || attempt >= attempts {
			return nil, fmt.Errorf("voice service dial failed after %d attempt(s): %w", attempt, err)
		}
		log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Err(err).
			Msg("voice service dial failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	if opts.MaxMessageLen > 0 {
		ws.SetReadLimit(opts.MaxMessageLen)
	}

	c := &Client{
		ws:        ws,
		log:       log,
		writeChan: make(chan []byte, writeBufferSize),
		events:    make(chan Event, 64),
		keepAlive: opts.KeepAlive,
		CloseChan: make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func buildURL(opts DialOptions) (string, error) {
	base := strings.TrimSuffix(opts.Endpoint, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)

	u, err := url.Parse(base + "/voice-live/realtime")
	if err != nil {
		return "", fmt.Errorf("invalid voice service endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api-version", opts.APIVersion)
	q.Set("model", opts.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// retryable reports whether a dial error is worth another attempt. A bad
// handshake with 401/403 means the key is wrong and retrying cannot help.
func retryable(err error, resp *http.Response) bool {
	if errors.Is(err, websocket.ErrBadHandshake) {
		if resp == nil {
			return true
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return false
		}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	}
	// Plain network errors (refused, reset, timeout) are transient.
	return true
}

// Events returns the decoded event stream. The channel closes when the
// connection drops or Close runs.
func (c *Client) Events() <-chan Event {
	return c.events
}

// readPump decodes frames onto the event channel. Malformed frames become
// ErrorEvents rather than ending the stream.
func (c *Client) readPump() {
	defer close(c.events)

	if c.keepAlive > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.keepAlive * 2))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.keepAlive * 2))
		})
	}

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !c.IsClosed() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("voice service read error")
			}
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable voice service frame")
			ev = &ErrorEvent{
				Type:  TypeError,
				Error: ErrorDetail{Type: "decode_error", Message: err.Error()},
			}
		}

		select {
		case c.events <- ev:
		case <-c.CloseChan:
			return
		}
	}
}

// writePump handles all outgoing frames in a single goroutine
func (c *Client) writePump() {
	var ping <-chan time.Time
	if c.keepAlive > 0 {
		t := time.NewTicker(c.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-c.CloseChan:
			return
		case <-ping:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame, ok := <-c.writeChan:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

// send queues a frame for the writer. Blocks when the queue is full so
// command ordering is preserved; returns ErrClosed after Close.
func (c *Client) send(frame []byte, err error) error {
	if err != nil {
		return err
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case c.writeChan <- frame:
		return nil
	case <-c.CloseChan:
		return ErrClosed
	}
}

// SendSessionUpdate sends the session.update configuration handshake.
func (c *Client) SendSessionUpdate(cfg SessionConfig) error {
	return c.send(encodeSessionUpdate(cfg))
}

// SendUserMessage injects a user text message into the conversation.
func (c *Client) SendUserMessage(text string) error {
	return c.send(encodeUserMessage(text))
}

// SendToolOutput submits a function_call_output item for callID.
func (c *Client) SendToolOutput(callID, output string) error {
	return c.send(encodeToolOutput(callID, output))
}

// SendResponseCreate requests a new model turn. Instructions, when
// non-empty, apply to this response only.
func (c *Client) SendResponseCreate(instructions string) error {
	return c.send(encodeResponseCreate(instructions))
}

// SendResponseCancel asks the service to stop the active response.
func (c *Client) SendResponseCancel() error {
	return c.send(encodeResponseCancel())
}

// SendAudioAppend forwards base64 caller audio into the input buffer.
func (c *Client) SendAudioAppend(b64 string) error {
	return c.send(encodeAudioAppend(b64))
}

// SendBufferClear discards audio accumulated in the input buffer.
func (c *Client) SendBufferClear() error {
	return c.send(encodeBufferClear())
}

// SendItemTruncate trims a played item to audioEndMs of audio so the
// conversation history matches what the caller actually heard.
func (c *Client) SendItemTruncate(itemID string, contentIndex, audioEndMs int) error {
	return c.send(encodeItemTruncate(itemID, contentIndex, audioEndMs))
}

// IsClosed reports whether Close has run.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.CloseChan)

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.ws.Close()
}
