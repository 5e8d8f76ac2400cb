// Package preview streams published frames to a remote viewer as JPEG images
// over a WebSocket.
package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/image/draw"
)

const (
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Config holds the remote preview settings.
type Config struct {
	Enabled bool    `json:"enabled" mapstructure:"enabled"`
	URL     string  `json:"url" mapstructure:"url"`
	Secret  string  `json:"secret" mapstructure:"secret"`
	Quality int     `json:"quality" mapstructure:"quality"`
	MaxFPS  float64 `json:"maxFps" mapstructure:"maxFps"`
}

// Hello is the first message on every connection.
type Hello struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Stats counts frames through the sink.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// Sink is a display sink that encodes on its own goroutine. Publish copies
// the frame into a mailbox of one; a newer frame replaces an unsent one.
type Sink struct {
	cfg    Config
	hello  []byte
	logger *slog.Logger

	mu      sync.Mutex
	conn    *ws.Conn
	pending *image.RGBA
	spare   *image.RGBA
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

// New creates a sink. Frames published before Dial wait in the mailbox.
func New(cfg Config, session string, width, height int, logger *slog.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("preview URL is required")
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = jpeg.DefaultQuality
	}
	if logger == nil {
		logger = slog.Default()
	}
	hello, err := json.Marshal(Hello{Type: "hello", Session: session, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	return &Sink{
		cfg:    cfg,
		hello:  hello,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Dial connects and starts the writer.
func (s *Sink) Dial() error {
	conn, err := s.dialOnce()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.wg.Add(1)
	go s.writeLoop()
	go s.readLoop(conn)
	s.notify()
	return nil
}

// Publish implements core.DisplaySink. It never blocks on the network.
func (s *Sink) Publish(img *image.RGBA) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	buf := s.spare
	s.spare = nil
	if buf == nil || buf.Rect != img.Rect {
		buf = image.NewRGBA(img.Rect)
	}
	draw.Copy(buf, buf.Rect.Min, img, img.Rect, draw.Src, nil)
	if s.pending != nil {
		s.dropped.Add(1)
		s.spare = s.pending
	}
	s.pending = buf
	s.mu.Unlock()
	s.notify()
}

// Stats returns the sink counters.
func (s *Sink) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Dropped: s.dropped.Load(), Errors: s.errors.Load()}
}

// Close sends a close frame and stops the writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}

func (s *Sink) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dialOnce connects and sends the hello message.
func (s *Sink) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid preview URL: %w", err)
	}
	if s.cfg.Secret != "" {
		q := u.Query()
		q.Set("secret", s.cfg.Secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("preview dial failed: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
		err = conn.WriteMessage(ws.TextMessage, s.hello)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending preview hello: %w", err)
	}
	return conn, nil
}

// writeLoop is the only writer on the connection.
func (s *Sink) writeLoop() {
	defer s.wg.Done()
	var (
		out      bytes.Buffer
		lastSent time.Time
	)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		if s.cfg.MaxFPS > 0 {
			interval := time.Duration(float64(time.Second) / s.cfg.MaxFPS)
			if wait := interval - time.Since(lastSent); wait > 0 {
				select {
				case <-s.done:
					return
				case <-time.After(wait):
				}
			}
		}

		s.mu.Lock()
		frame := s.pending
		s.pending = nil
		conn := s.conn
		s.mu.Unlock()
		if frame == nil {
			continue
		}

		out.Reset()
		err := jpeg.Encode(&out, frame, &jpeg.Options{Quality: s.cfg.Quality})
		s.mu.Lock()
		if s.spare == nil {
			s.spare = frame
		}
		s.mu.Unlock()
		if err != nil {
			s.errors.Add(1)
			s.logger.Warn("preview encode failed", "error", err)
			continue
		}

		if conn == nil {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
			err = conn.WriteMessage(ws.BinaryMessage, out.Bytes())
		}
		if err != nil {
			s.errors.Add(1)
			s.logger.Warn("preview write failed", "error", err)
			if !s.reconnect() {
				return
			}
			continue
		}
		s.sent.Add(1)
		lastSent = time.Now()
	}
}

// readLoop drains control frames until the connection fails.
func (s *Sink) readLoop(conn *ws.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// reconnect redials with exponential backoff. It reports false when the sink
// closed or every attempt failed.
func (s *Sink) reconnect() bool {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-s.done:
			return false
		case <-time.After(backoff):
		}

		conn, err := s.dialOnce()
		if err != nil {
			s.logger.Warn("preview reconnect failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.mu.Unlock()
		go s.readLoop(conn)
		s.logger.Info("preview reconnected", "attempt", attempt)
		return true
	}

	s.logger.Error("preview reconnect failed after max attempts", "maxAttempts", maxReconnect)
	return false
}
