package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	// The server drops connections idle for 60s, so ping well inside that.
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// StreamConfig configures a Stream. OnCandle fires for every candle
// update, including in-progress bars re-sent on each trade. Callbacks
// run on the stream's read goroutine and must not block.
type StreamConfig struct {
	URL    string            // default MainnetWSURL
	Dialer *websocket.Dialer // default websocket.DefaultDialer

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 1m

	OnCandle func(Candle)
	OnError  func(error)
}

// Stream maintains a websocket subscription to candle channels with
// automatic reconnect and resubscribe.
type Stream struct {
	url    string
	dialer *websocket.Dialer
	boff   *backoff.Backoff

	onCandle func(Candle)
	onError  func(error)

	mu   sync.Mutex
	subs map[[2]string]struct{} // coin, interval
	conn *websocket.Conn
}

func NewStream(cfg StreamConfig) *Stream {
	if cfg.URL == "" {
		cfg.URL = MainnetWSURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Stream{
		url:    cfg.URL,
		dialer: cfg.Dialer,
		boff: &backoff.Backoff{
			Min:    cfg.MinBackoff,
			Max:    cfg.MaxBackoff,
			Factor: 2,
			Jitter: true,
		},
		onCandle: cfg.OnCandle,
		onError:  cfg.OnError,
		subs:     make(map[[2]string]struct{}),
	}
}

type subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin"`
	Interval string `json:"interval,omitempty"`
}

type wsRequest struct {
	Method       string        `json:"method"`
	Subscription *subscription `json:"subscription,omitempty"`
}

// wsFrame is the envelope of every server message.
type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Subscribe registers a candle subscription. It is sent immediately
// when connected and replayed after every reconnect.
func (s *Stream) Subscribe(coin, interval string) error {
	s.mu.Lock()
	s.subs[[2]string{coin, interval}] = struct{}{}
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		return nil
	}
	return s.send(wsRequest{Method: "subscribe", Subscription: &subscription{Type: "candle", Coin: coin, Interval: interval}})
}

// Unsubscribe drops a candle subscription and stops replaying it on
// reconnect.
func (s *Stream) Unsubscribe(coin, interval string) error {
	s.mu.Lock()
	delete(s.subs, [2]string{coin, interval})
	connected := s.conn != nil
	s.mu.Unlock()
	if !connected {
		return nil
	}
	return s.send(wsRequest{Method: "unsubscribe", Subscription: &subscription{Type: "candle", Coin: coin, Interval: interval}})
}

// Connected reports whether the stream currently holds a live
// connection.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff after any failure. It always returns ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.runConn(ctx); err != nil && ctx.Err() == nil {
			s.fail(err)
		}
		delay := s.boff.Duration()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Stream) runConn(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", s.url, err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	pending := make([]subscription, 0, len(s.subs))
	for k := range s.subs {
		pending = append(pending, subscription{Type: "candle", Coin: k[0], Interval: k[1]})
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	for i := range pending {
		if err := s.send(wsRequest{Method: "subscribe", Subscription: &pending[i]}); err != nil {
			return err
		}
	}
	s.boff.Reset()

	// Pings keep the connection alive; ctx cancellation closes it so
	// the read below unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ping.C:
				if err := s.send(wsRequest{Method: "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.dispatch(raw)
	}
}

func (s *Stream) dispatch(raw []byte) {
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.fail(fmt.Errorf("decode frame: %w", err))
		return
	}
	switch frame.Channel {
	case "candle":
		var c Candle
		if err := json.Unmarshal(frame.Data, &c); err != nil {
			s.fail(fmt.Errorf("decode candle: %w", err))
			return
		}
		if s.onCandle != nil {
			s.onCandle(c)
		}
	case "error":
		// data is a bare string on this channel
		var msg string
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			msg = string(frame.Data)
		}
		s.fail(fmt.Errorf("server error: %s", msg))
	case "pong", "subscriptionResponse":
	}
}

func (s *Stream) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("hyperliquid: stream not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Stream) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
