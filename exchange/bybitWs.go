package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"bybitMaker/logger"
	"bybitMaker/metrics"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	PUBLIC_WS_URL  = "wss://stream.bybit.com/v5/public/linear"
	PRIVATE_WS_URL = "wss://stream.bybit.com/v5/private"

	// payload of the application-level keepalive
	APP_PING = `{"op":"ping"}`

	defaultPingInterval = 20 * time.Second
	defaultPingCheck    = time.Second
	writeWait           = 5 * time.Second
)

// ErrFeedClosed is returned by Run when the venue sends a close frame.
var ErrFeedClosed = errors.New("feed closed by peer")

type FeedState int32

const (
	StateConnecting FeedState = iota
	StateSubscribed
	StateRunning
	StateReconnecting
	StateStopped
)

func (s FeedState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "stopped"
	}
}

// Feed keeps a level-1 subscription alive and publishes tops into an OrderBook.
type Feed struct {
	URL    string
	Topics []string
	ob     *OrderBook

	// OnMessage receives the raw text of every frame on a subscribed topic,
	// after the order book has been updated.
	OnMessage func([]byte)

	PingInterval time.Duration
	// how often the keepalive checks whether a ping is due
	PingCheck time.Duration
	// a connection with no inbound frame for this long is dropped; zero means 2*PingInterval
	ReadTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer

	metrics *metrics.Metrics
	state   atomic.Int32
}

func NewFeed(url string, topics []string, ob *OrderBook, m *metrics.Metrics) *Feed {
	if url == "" {
		url = PUBLIC_WS_URL
	}
	if m == nil {
		m = metrics.New(ob.Symbol)
	}
	f := &Feed{
		URL:          url,
		Topics:       topics,
		ob:           ob,
		PingInterval: defaultPingInterval,
		PingCheck:    defaultPingCheck,
		MinBackoff:   500 * time.Millisecond,
		MaxBackoff:   30 * time.Second,
		Dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: websocket.DefaultDialer.Proxy},
		metrics:      m,
	}
	f.state.Store(int32(StateStopped))
	return f
}

func (f *Feed) State() FeedState { return FeedState(f.state.Load()) }

func (f *Feed) setState(s FeedState) { f.state.Store(int32(s)) }

// Run connects, subscribes and reads until ctx is done (nil) or the venue closes
// the stream (ErrFeedClosed). Any other receive error triggers a reconnect.
func (f *Feed) Run(ctx context.Context) error {
	ctx = logger.With(ctx, "component", "feed")
	defer f.setState(StateStopped)

	b := &backoff.Backoff{Min: f.MinBackoff, Max: f.MaxBackoff, Factor: 2, Jitter: true}
	for {
		conn, err := f.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d := b.Duration()
			logger.Warn(ctx, "ws connect failed", "url", f.URL, "error", err, "retry_in", d)
			if !sleep(ctx, d) {
				return nil
			}
			continue
		}
		b.Reset()

		err = f.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrFeedClosed) {
			logger.Warn(ctx, "ws closed by venue", "error", err)
			return err
		}

		// quote nothing off a top that can no longer be refreshed
		f.ob.Clear()
		f.setState(StateReconnecting)
		f.metrics.WSReconnectsTotal.Inc()
		d := b.Duration()
		logger.Warn(ctx, "ws receive error, reconnecting", "error", err, "retry_in", d)
		if !sleep(ctx, d) {
			return nil
		}
	}
}

func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	f.setState(StateConnecting)
	c, _, err := f.Dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	for _, topic := range f.Topics {
		frame, _ := json.Marshal(subscribeMsg{Op: "subscribe", Args: []string{topic}})
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.Close()
			return nil, fmt.Errorf("ws subscribe %s: %w", topic, err)
		}
	}
	f.setState(StateSubscribed)
	logger.Info(ctx, "ws subscribed", "url", f.URL, "topics", strings.Join(f.Topics, ","))
	return c, nil
}

func (f *Feed) serve(ctx context.Context, c *websocket.Conn) error {
	defer c.Close()
	done := make(chan struct{})
	defer close(done)

	// a blocked read only returns once the socket is closed
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	readTimeout := f.readTimeout()
	extend := func() { _ = c.SetReadDeadline(time.Now().Add(readTimeout)) }

	c.SetPingHandler(func(payload string) error {
		extend()
		f.metrics.WSMessagesTotal.WithLabelValues("ping").Inc()
		err := c.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	c.SetPongHandler(func(string) error {
		extend()
		f.metrics.WSMessagesTotal.WithLabelValues("pong").Inc()
		return nil
	})

	go f.keepalive(ctx, c, done)

	f.setState(StateRunning)
	for {
		extend()
		mt, data, err := c.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
				return fmt.Errorf("%w: %d %s", ErrFeedClosed, ce.Code, ce.Text)
			}
			return err
		}
		switch mt {
		case websocket.TextMessage:
			f.handleText(ctx, data)
		case websocket.BinaryMessage:
			f.metrics.WSMessagesTotal.WithLabelValues("binary").Inc()
			logger.Debug(ctx, "ws binary frame ignored", "bytes", len(data))
		}
	}
}

func (f *Feed) readTimeout() time.Duration {
	if f.ReadTimeout > 0 {
		return f.ReadTimeout
	}
	return 2 * f.PingInterval
}

// keepalive sends APP_PING as a ping frame once PingInterval has elapsed since the
// last successful send.
func (f *Feed) keepalive(ctx context.Context, c *websocket.Conn, done <-chan struct{}) {
	last := time.Now()
	t := time.NewTicker(f.PingCheck)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case now := <-t.C:
			if now.Sub(last) < f.PingInterval {
				continue
			}
			if err := c.WriteControl(websocket.PingMessage, []byte(APP_PING), time.Now().Add(writeWait)); err != nil {
				logger.Warn(ctx, "ws ping failed", "error", err)
				continue
			}
			last = now
			f.metrics.WSPingsTotal.Inc()
		}
	}
}

func (f *Feed) handleText(ctx context.Context, data []byte) {
	var m WSMsg
	if err := json.Unmarshal(data, &m); err != nil {
		f.metrics.WSMessagesTotal.WithLabelValues("malformed").Inc()
		logger.Debug(ctx, "ws message skipped", "error", err)
		return
	}
	if m.Topic == "" {
		f.handleOp(ctx, &m)
		return
	}
	if !f.subscribed(m.Topic) {
		f.metrics.WSMessagesTotal.WithLabelValues("other").Inc()
		return
	}
	if strings.HasPrefix(m.Topic, LEVEL1_TOPIC_PREFIX) {
		l1, err := ParseLevel1(&m)
		if err != nil {
			f.metrics.WSMessagesTotal.WithLabelValues("malformed").Inc()
			logger.Debug(ctx, "ws message skipped", "topic", m.Topic, "error", err)
			return
		}
		f.ob.Apply(l1)
		bid, ask := f.ob.Snapshot()
		f.metrics.BestBid.Set(bid.InexactFloat64())
		f.metrics.BestAsk.Set(ask.InexactFloat64())
		logger.Debug(ctx, "top of book", "bid", bid.String(), "ask", ask.String(), "coherent", bid.LessThan(ask))
	}
	f.metrics.WSMessagesTotal.WithLabelValues("topic").Inc()
	if f.OnMessage != nil {
		f.OnMessage(data)
	}
}

func (f *Feed) handleOp(ctx context.Context, m *WSMsg) {
	f.metrics.WSMessagesTotal.WithLabelValues("op").Inc()
	if m.Success != nil && !*m.Success {
		logger.Error(ctx, "ws op rejected", "op", m.Op, "ret_msg", m.RetMsg)
		return
	}
	logger.Debug(ctx, "ws op reply", "op", m.Op, "ret_msg", m.RetMsg, "conn_id", m.ConnID)
}

func (f *Feed) subscribed(topic string) bool {
	for _, t := range f.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
