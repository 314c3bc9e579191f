package telephony

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callbridge/logging"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
)

// Conn wraps the call platform's WebSocket with a single-writer pump so
// outbound frames never interleave. Reads stay on the caller's goroutine.
type Conn struct {
	ws  *websocket.Conn
	log *logging.Logger

	// Use channels for non-blocking writes
	writeChan chan []byte

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
}

// NewConn adopts an upgraded WebSocket and starts its write pump.
func NewConn(ws *websocket.Conn, log *logging.Logger) *Conn {
	c := &Conn{
		ws:        ws,
		log:       log,
		writeChan: make(chan []byte, writeBufferSize),
		CloseChan: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// SendAudio queues an AudioData frame carrying base64 audio.
func (c *Conn) SendAudio(b64 string) error {
	frame, err := EncodeAudio(b64)
	if err != nil {
		return err
	}
	c.queueFrame(frame)
	return nil
}

// SendStopAudio queues a StopAudio frame.
func (c *Conn) SendStopAudio() error {
	frame, err := EncodeStop()
	if err != nil {
		return err
	}
	c.queueFrame(frame)
	return nil
}

// Read blocks for the next inbound envelope. Returns the underlying
// WebSocket error once the peer hangs up.
func (c *Conn) Read() (Message, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return Decode(raw)
}

// queueFrame adds a frame to the write queue (non-blocking)
func (c *Conn) queueFrame(frame []byte) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}
	select {
	case c.writeChan <- frame:
	default:
		// Queue full, drop frame; audio is latency-sensitive and stale
		// frames are worse than missing ones.
		c.log.Warn().Msg("media write queue full, dropping frame")
	}
}

// writePump handles all outgoing frames in a single goroutine
func (c *Conn) writePump() {
	defer func() {
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.ws.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-c.CloseChan:
			return
		case frame, ok := <-c.writeChan:
			if !ok {
				return
			}

			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			n := len(c.writeChan)
			for i := 0; i < n; i++ {
				select {
				case frame, ok := <-c.writeChan:
					if !ok {
						return
					}
					if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
				}
			}
		}
	}
}

// IsClosed reports whether Close has run.
func (c *Conn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close terminates the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.CloseChan)

	return c.ws.Close()
}
