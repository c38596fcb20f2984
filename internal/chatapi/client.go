// Package chatapi talks to the chat service: older pages over HTTP, live pushes over
// a websocket.
package chatapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/timeline"
)

const (
	PagePath = "/capi/chat/public/msg/page"
	SendPath = "/capi/chat/msg"

	defaultTimeout = 10 * time.Second
)

var (
	// ErrServer covers non-2xx responses and envelopes with success=false.
	ErrServer = errors.New("chat server error")
	// ErrEmptyPage is returned when a successful envelope carries no data.
	ErrEmptyPage = errors.New("chat server returned no data")
)

// Envelope wraps every API response.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	ErrCode int    `json:"errCode,omitempty"`
	ErrMsg  string `json:"errMsg,omitempty"`
	Data    *T     `json:"data,omitempty"`
}

// PageData is the payload of a page response.
type PageData struct {
	List   []chat.Message `json:"list"`
	Cursor string         `json:"cursor"`
	IsLast bool           `json:"isLast"`
}

// SendRequest posts a message to a room.
type SendRequest struct {
	RoomID   int64  `json:"roomId"`
	UID      int64  `json:"uid"`
	Username string `json:"username"`
	Body     string `json:"body"`
	ReplyID  int64  `json:"replyId,omitempty"`
}

type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Client is the HTTP side of the chat API. It implements timeline.PageFetcher.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

var _ timeline.PageFetcher = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("chat api base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := logging.Component("chatapi")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger: logger})
	if token := strings.TrimSpace(cfg.Token); token != "" {
		httpClient.SetAuthToken(token)
	}

	return &Client{http: httpClient, logger: logger}, nil
}

// FetchPage loads the page preceding req.Cursor.
func (c *Client) FetchPage(ctx context.Context, req timeline.PageRequest) (*timeline.Page, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = timeline.DefaultPageSize
	}
	params := map[string]string{
		"pageSize": strconv.Itoa(pageSize),
		"roomId":   strconv.FormatInt(req.RoomID, 10),
	}
	if req.Cursor != "" {
		params["cursor"] = string(req.Cursor)
	}

	var env Envelope[PageData]
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&env).
		SetError(&env).
		Get(PagePath)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	c.logger.Debug().
		Str("url", logging.RedactURL(resp.Request.URL)).
		Int("status", resp.StatusCode()).
		Dur("took", resp.Time()).
		Msg("page request")

	data, err := unwrap(resp, &env)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	return &timeline.Page{
		List:   data.List,
		Cursor: timeline.Cursor(data.Cursor),
		IsLast: data.IsLast,
	}, nil
}

// Send posts a message and returns it as stored by the server.
func (c *Client) Send(ctx context.Context, req SendRequest) (*chat.Message, error) {
	if err := chat.ValidateRoomID(req.RoomID); err != nil {
		return nil, err
	}
	body, err := chat.NormalizeBody(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = body

	var env Envelope[chat.Message]
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&env).
		SetError(&env).
		Post(SendPath)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	msg, err := unwrap(resp, &env)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

func unwrap[T any](resp *resty.Response, env *Envelope[T]) (*T, error) {
	if resp.IsError() {
		if env.ErrMsg != "" {
			return nil, fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode(), env.ErrMsg)
		}
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode())
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: code %d: %s", ErrServer, env.ErrCode, env.ErrMsg)
	}
	if env.Data == nil {
		return nil, ErrEmptyPage
	}
	return env.Data, nil
}

// restyLogger routes resty's own diagnostics through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error().Msg(logging.Redact(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn().Msg(logging.Redact(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug().Msg(logging.Redact(fmt.Sprintf(format, v...)))
}
