package roomserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/chatapi"
	"github.com/tOgg1/roomline/internal/history"
	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/testutil"
	"github.com/tOgg1/roomline/internal/timeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.Discard()
	os.Exit(m.Run())
}

func nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type harness struct {
	server *Server
	http   *httptest.Server
	api    *chatapi.Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	db, err := history.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	srv := NewServer(history.NewRepository(db), opts...)
	ts := testutil.NewServer(t, srv.Routes())
	t.Cleanup(srv.Hub().Close)

	api, err := chatapi.NewClient(chatapi.ClientConfig{BaseURL: ts.URL, Token: "tok", Timeout: 2 * time.Second, Logger: nop()})
	require.NoError(t, err)
	return &harness{server: srv, http: ts, api: api}
}

func (h *harness) wsURL() string {
	return testutil.WebsocketURL(h.http.URL)
}

func (h *harness) send(t *testing.T, roomID int64, body string) *chat.Message {
	t.Helper()
	msg, err := h.api.Send(context.Background(), chatapi.SendRequest{RoomID: roomID, UID: 1, Username: "ann", Body: body})
	require.NoError(t, err)
	return msg
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestSendThenPage(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 25; i++ {
		h.send(t, 1, "hello")
	}
	h.send(t, 2, "other room")

	page, err := h.api.FetchPage(context.Background(), timeline.PageRequest{PageSize: 20, RoomID: 1})
	require.NoError(t, err)
	require.Len(t, page.List, 20)
	require.False(t, page.IsLast)
	require.Equal(t, timeline.Cursor("6"), page.Cursor)
	require.Equal(t, int64(6), page.List[0].ID)

	older, err := h.api.FetchPage(context.Background(), timeline.PageRequest{PageSize: 20, Cursor: page.Cursor, RoomID: 1})
	require.NoError(t, err)
	require.Len(t, older.List, 5)
	require.True(t, older.IsLast)
}

func TestPageEmptyRoom(t *testing.T) {
	h := newHarness(t)
	page, err := h.api.FetchPage(context.Background(), timeline.PageRequest{RoomID: 3})
	require.NoError(t, err)
	require.Empty(t, page.List)
	require.True(t, page.IsLast)
}

func TestPageRejectsBadCursor(t *testing.T) {
	h := newHarness(t)
	_, err := h.api.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1, Cursor: "abc"})
	require.ErrorIs(t, err, chatapi.ErrServer)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Post(h.http.URL+chatapi.SendPath, "application/json", strings.NewReader(`{"roomId":1,"uid":0,"body":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = h.api.Send(context.Background(), chatapi.SendRequest{RoomID: 1, UID: 1, Body: "re", ReplyID: 77})
	require.ErrorIs(t, err, chatapi.ErrServer)
}

func TestSendReply(t *testing.T) {
	h := newHarness(t)
	parent := h.send(t, 1, "lunch?")

	reply, err := h.api.Send(context.Background(), chatapi.SendRequest{RoomID: 1, UID: 2, Username: "bob", Body: "yes", ReplyID: parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.Reply)
	require.Equal(t, parent.ID, reply.Reply.ID)
	require.Equal(t, "lunch?", reply.Reply.Body)
	require.Equal(t, "ann", reply.Reply.Username)
}

func TestTokenRequired(t *testing.T) {
	h := newHarness(t, WithToken("secret"))
	_, err := h.api.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1})
	require.ErrorIs(t, err, chatapi.ErrServer)

	api, err := chatapi.NewClient(chatapi.ClientConfig{BaseURL: h.http.URL, Token: "secret", Logger: nop()})
	require.NoError(t, err)
	_, err = api.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1})
	require.NoError(t, err)

	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBroadcastReachesRoomSubscribers(t *testing.T) {
	h := newHarness(t)

	room1, err := chatapi.NewPushClient(chatapi.PushConfig{URL: h.wsURL(), RoomID: 1, Logger: nop()})
	require.NoError(t, err)
	room2, err := chatapi.NewPushClient(chatapi.PushConfig{URL: h.wsURL(), RoomID: 2, Logger: nop()})
	require.NoError(t, err)

	ch1, cancel1 := room1.Subscribe(context.Background())
	defer cancel1()
	ch2, cancel2 := room2.Subscribe(context.Background())
	defer cancel2()
	require.Eventually(t, func() bool { return h.server.Hub().Count() == 2 }, 3*time.Second, 10*time.Millisecond)

	sent := h.send(t, 1, "ping")
	select {
	case got := <-ch1:
		require.Equal(t, sent.ID, got.ID)
		require.Equal(t, "ping", got.Body)
		require.True(t, got.SendTime.Equal(sent.SendTime))
	case <-time.After(3 * time.Second):
		t.Fatal("room 1 subscriber got nothing")
	}
	select {
	case got := <-ch2:
		t.Fatalf("room 2 subscriber got %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStoreEndToEnd(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.send(t, 1, "history")
	}

	queue := make(chan func(), 4)
	store, pending := timeline.New(context.Background(), 1, h.api,
		timeline.WithScheduler(func(fn func()) { queue <- fn }),
		timeline.WithScrollToBottom(func() {}),
	)
	require.NoError(t, pending.Wait(context.Background()))
	require.True(t, store.IsLast())

	push, err := chatapi.NewPushClient(chatapi.PushConfig{URL: h.wsURL(), RoomID: 1, Logger: nop()})
	require.NoError(t, err)
	ch, cancel := push.Subscribe(context.Background())
	defer cancel()
	require.Eventually(t, func() bool { return h.server.Hub().Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	live := h.send(t, 1, "live")
	select {
	case msg := <-ch:
		store.ReceivePush(msg)
	case <-time.After(3 * time.Second):
		t.Fatal("no push")
	}

	items := store.Items()
	require.Equal(t, live.ID, items[len(items)-1].Message.ID)
	require.Len(t, queue, 1)
}

func TestHubDropsWhenClientIsSlow(t *testing.T) {
	hub := NewHub()
	slow := &client{ID: "slow", RoomID: 1, logger: zerolog.Nop(), send: make(chan []byte, 1)}
	other := &client{ID: "other", RoomID: 2, logger: zerolog.Nop(), send: make(chan []byte, 1)}
	all := &client{ID: "all", RoomID: 0, logger: zerolog.Nop(), send: make(chan []byte, 4)}
	hub.clients = map[string]*client{slow.ID: slow, other.ID: other, all.ID: all}

	frame := chatapi.Frame{Type: chatapi.FrameMessage, Data: json.RawMessage(`{"id":1}`)}
	require.Equal(t, 2, hub.Broadcast(1, frame))
	require.Equal(t, 1, hub.Broadcast(1, frame), "slow client drops the second frame")
	require.Len(t, all.send, 2)
	require.Empty(t, other.send)

	slow.close()
	require.False(t, slow.trySend([]byte("x")))
	slow.close()
}

func TestServeStopsOnCancel(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	db, err := history.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	srv := NewServer(history.NewRepository(db))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
