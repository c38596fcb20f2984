package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/testutil"
	"github.com/tOgg1/roomline/internal/timeline"
)

func quietLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := testutil.NewServer(t, handler)
	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Token: "tok", Timeout: 2 * time.Second, Logger: quietLogger()})
	require.NoError(t, err)
	return client
}

func TestFetchPage(t *testing.T) {
	sent := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var gotQuery map[string]string
	var gotAuth string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PagePath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		writeJSON(t, w, http.StatusOK, Envelope[PageData]{
			Success: true,
			Data: &PageData{
				List:   []chat.Message{{ID: 3, RoomID: 1, FromUser: chat.User{UID: 5}, Body: "hi", Type: chat.MessageTypeText, SendTime: sent}},
				Cursor: "3",
				IsLast: true,
			},
		})
	})

	page, err := client.FetchPage(context.Background(), timeline.PageRequest{PageSize: 20, Cursor: "9", RoomID: 1})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, map[string]string{"pageSize": "20", "roomId": "1", "cursor": "9"}, gotQuery)
	require.Equal(t, timeline.Cursor("3"), page.Cursor)
	require.True(t, page.IsLast)
	require.Len(t, page.List, 1)
	require.Equal(t, int64(5), page.List[0].FromUser.UID)
	require.True(t, page.List[0].SendTime.Equal(sent))
}

func TestFetchPageOmitsEmptyCursor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["cursor"]
		require.False(t, ok)
		writeJSON(t, w, http.StatusOK, Envelope[PageData]{Success: true, Data: &PageData{}})
	})

	page, err := client.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1})
	require.NoError(t, err)
	require.Empty(t, page.List)
	require.False(t, page.IsLast)
}

func TestFetchPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{
			name:    "success false",
			status:  http.StatusOK,
			body:    Envelope[PageData]{Success: false, ErrCode: 4001, ErrMsg: "room closed"},
			wantErr: ErrServer,
		},
		{
			name:    "server error status",
			status:  http.StatusInternalServerError,
			body:    Envelope[PageData]{ErrMsg: "boom"},
			wantErr: ErrServer,
		},
		{
			name:    "missing data",
			status:  http.StatusOK,
			body:    Envelope[PageData]{Success: true},
			wantErr: ErrEmptyPage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			})
			_, err := client.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetchPageTransportError(t *testing.T) {
	srv := testutil.NewServer(t, http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second, Logger: quietLogger()})
	require.NoError(t, err)
	_, err = client.FetchPage(context.Background(), timeline.PageRequest{RoomID: 1})
	require.Error(t, err)
}

func TestFetchPageFeedsStore(t *testing.T) {
	sent := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, Envelope[PageData]{
			Success: true,
			Data: &PageData{
				List: []chat.Message{
					{ID: 1, RoomID: 1, FromUser: chat.User{UID: 2}, Body: "a", Type: chat.MessageTypeText, SendTime: sent},
					{ID: 2, RoomID: 1, FromUser: chat.User{UID: 2}, Body: "b", Type: chat.MessageTypeText, SendTime: sent.Add(time.Hour)},
				},
				Cursor: "1",
			},
		})
	})

	store, pending := timeline.New(context.Background(), 1, client, timeline.WithLogger(zerolog.Nop()))
	require.NoError(t, pending.Wait(context.Background()))
	require.Len(t, store.Items(), 3)
	require.Equal(t, timeline.Cursor("1"), store.Cursor())
}

func TestSend(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, SendPath, r.URL.Path)
		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hello", req.Body)
		require.Equal(t, int64(8), req.ReplyID)
		writeJSON(t, w, http.StatusOK, Envelope[chat.Message]{Success: true, Data: &chat.Message{
			ID: 10, RoomID: req.RoomID, FromUser: chat.User{UID: req.UID}, Body: req.Body, Type: chat.MessageTypeText,
		}})
	})

	msg, err := client.Send(context.Background(), SendRequest{RoomID: 1, UID: 4, Body: "  hello ", ReplyID: 8})
	require.NoError(t, err)
	require.Equal(t, int64(10), msg.ID)
	require.Equal(t, int64(4), msg.FromUser.UID)
}

func TestSendValidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})
	_, err := client.Send(context.Background(), SendRequest{RoomID: 0, Body: "x"})
	require.ErrorIs(t, err, chat.ErrInvalidRoom)
	_, err = client.Send(context.Background(), SendRequest{RoomID: 1, Body: "   "})
	require.ErrorIs(t, err, chat.ErrEmptyBody)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
}
