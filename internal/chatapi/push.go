package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/logging"
)

// WebsocketPath is the push endpoint relative to the websocket base URL.
const WebsocketPath = "/websocket"

// Frame types on the push socket.
const (
	FrameHeartbeat = 2
	FrameMessage   = 4
)

const (
	defaultHeartbeat         = 30 * time.Second
	defaultReconnectInterval = 2 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultSubscribeBuffer   = 64
)

// Frame is one JSON message on the push socket.
type Frame struct {
	Type int             `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageFrame wraps msg for broadcast.
func MessageFrame(msg chat.Message) (Frame, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameMessage, Data: data}, nil
}

type PushConfig struct {
	// URL is the websocket base, e.g. ws://127.0.0.1:8088.
	URL   string
	Token string

	// RoomID, when set, asks the server for pushes of that room only.
	RoomID int64

	Heartbeat         time.Duration
	ReconnectInterval time.Duration
	HandshakeTimeout  time.Duration
	SubscribeBuffer   int
	Logger            *zerolog.Logger
}

// PushClient streams pushed messages and keeps the socket alive across disconnects.
type PushClient struct {
	endpoint          string
	heartbeat         time.Duration
	reconnectInterval time.Duration
	subscribeBuffer   int
	dialer            websocket.Dialer
	logger            zerolog.Logger
}

func NewPushClient(cfg PushConfig) (*PushClient, error) {
	endpoint, err := pushEndpoint(cfg.URL, cfg.Token, cfg.RoomID)
	if err != nil {
		return nil, err
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	reconnectInterval := cfg.ReconnectInterval
	if reconnectInterval <= 0 {
		reconnectInterval = defaultReconnectInterval
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	buffer := cfg.SubscribeBuffer
	if buffer <= 0 {
		buffer = defaultSubscribeBuffer
	}
	logger := logging.Component("push")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &PushClient{
		endpoint:          endpoint,
		heartbeat:         heartbeat,
		reconnectInterval: reconnectInterval,
		subscribeBuffer:   buffer,
		dialer:            websocket.Dialer{HandshakeTimeout: handshake},
		logger:            logger,
	}, nil
}

func pushEndpoint(base, token string, roomID int64) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("push url is required")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + WebsocketPath)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push url must use ws or wss, got %q", u.Scheme)
	}
	q := u.Query()
	if token = strings.TrimSpace(token); token != "" {
		q.Set("token", token)
	}
	if roomID > 0 {
		q.Set("roomId", strconv.FormatInt(roomID, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe streams pushed messages until cancel is called or ctx ends. The channel is
// closed when the subscription stops.
func (p *PushClient) Subscribe(ctx context.Context) (<-chan chat.Message, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan chat.Message, p.subscribeBuffer)
	go p.subscribeLoop(ctx, out)
	return out, cancel
}

func (p *PushClient) subscribeLoop(ctx context.Context, out chan<- chat.Message) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return
		}
		err := p.stream(ctx, out)
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn().Err(err).Dur("retry_in", p.reconnectInterval).Msg("push stream disconnected")

		timer := time.NewTimer(p.reconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *PushClient) stream(ctx context.Context, out chan<- chat.Message) error {
	conn, resp, err := p.dialer.DialContext(ctx, p.endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial push: status=%d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial push: %w", err)
	}
	defer conn.Close()
	p.logger.Info().Str("url", logging.RedactURL(p.endpoint)).Msg("push connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(Frame{Type: FrameHeartbeat}); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			p.logger.Warn().Err(err).Msg("invalid push frame")
			continue
		}
		if frame.Type != FrameMessage || len(frame.Data) == 0 {
			continue
		}
		var msg chat.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			p.logger.Warn().Err(err).Msg("invalid pushed message")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
		}
	}
}
