package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/testutil"
)

func receive(t *testing.T, ch <-chan chat.Message) chat.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for push")
	}
	return chat.Message{}
}

func TestPushEndpoint(t *testing.T) {
	got, err := pushEndpoint("ws://127.0.0.1:8088/", "a b", 3)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:8088/websocket?roomId=3&token=a+b", got)

	got, err = pushEndpoint("wss://chat.example.com", "", 0)
	require.NoError(t, err)
	require.Equal(t, "wss://chat.example.com/websocket", got)

	_, err = pushEndpoint("http://chat.example.com", "", 0)
	require.Error(t, err)
	_, err = pushEndpoint("", "", 0)
	require.Error(t, err)
}

func TestSubscribeDeliversMessageFrames(t *testing.T) {
	var gotToken atomic.Value
	upgrader := websocket.Upgrader{}
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, WebsocketPath, r.URL.Path)
		gotToken.Store(r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(Frame{Type: FrameHeartbeat}))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		frame, err := MessageFrame(chat.Message{ID: 7, RoomID: 1, FromUser: chat.User{UID: 3}, Body: "hey"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))

		// Hold the socket open until the client leaves.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client, err := NewPushClient(PushConfig{URL: testutil.WebsocketURL(srv.URL), Token: "tok", Logger: quietLogger()})
	require.NoError(t, err)
	ch, cancel := client.Subscribe(context.Background())

	msg := receive(t, ch)
	require.Equal(t, int64(7), msg.ID)
	require.Equal(t, "hey", msg.Body)
	require.Equal(t, "tok", gotToken.Load())

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not close")
	}
}

func TestSubscribeReconnects(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		frame, err := MessageFrame(chat.Message{ID: int64(n), RoomID: 1, Body: "m"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))
		if n == 1 {
			return
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client, err := NewPushClient(PushConfig{URL: testutil.WebsocketURL(srv.URL), ReconnectInterval: 20 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)
	ch, cancel := client.Subscribe(context.Background())
	defer cancel()

	require.Equal(t, int64(1), receive(t, ch).ID)
	require.Equal(t, int64(2), receive(t, ch).ID)
	require.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestSubscribeSendsHeartbeat(t *testing.T) {
	beats := make(chan Frame, 4)
	upgrader := websocket.Upgrader{}
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if json.Unmarshal(data, &frame) == nil {
				select {
				case beats <- frame:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	client, err := NewPushClient(PushConfig{URL: testutil.WebsocketURL(srv.URL), Heartbeat: 20 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)
	_, cancel := client.Subscribe(context.Background())
	defer cancel()

	select {
	case frame := <-beats:
		require.Equal(t, FrameHeartbeat, frame.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat received")
	}
}
