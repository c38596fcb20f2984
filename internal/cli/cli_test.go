package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/history"
	"github.com/tOgg1/roomline/internal/roomserver"
	"github.com/tOgg1/roomline/internal/roomtui"
	"github.com/tOgg1/roomline/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// isolate points config discovery at an empty home so the developer's files and
// ROOMLINE_* variables do not leak in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "ROOMLINE_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	return home
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func startServer(t *testing.T) (*history.Repository, string) {
	t.Helper()
	db, err := history.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	repo := history.NewRepository(db)
	srv := roomserver.NewServer(repo)
	ts := testutil.NewServer(t, srv.Routes())
	t.Cleanup(srv.Hub().Close)
	return repo, ts.URL
}

func seed(t *testing.T, repo *history.Repository, n int) {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		msg := chat.Message{
			RoomID:   1,
			FromUser: chat.User{UID: 1, Username: "ann"},
			Body:     fmt.Sprintf("note %d", i),
			SendTime: start.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Append(context.Background(), &msg))
	}
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "roomline test\n", out)
}

func TestSendThenHistory(t *testing.T) {
	isolate(t)
	_, url := startServer(t)

	out, _, err := execute(t, "send", "--server", url, "--room", "1", "--name", "ann", "hello", "there")
	require.NoError(t, err)
	require.Equal(t, "sent #1\n", out)

	out, _, err = execute(t, "send", "--server", url, "--room", "1", "--uid", "2", "--name", "bob", "--reply-to", "1", "hi")
	require.NoError(t, err)
	require.Equal(t, "sent #2\n", out)

	out, stderr, err := execute(t, "history", "--server", url, "--room", "1")
	require.NoError(t, err)
	require.Contains(t, out, "ann: hello there")
	require.Contains(t, out, "┌ ann: hello there")
	require.Contains(t, out, "bob: hi")
	require.NotContains(t, stderr, "--all")
}

func TestHistoryPagesBackWithAll(t *testing.T) {
	isolate(t)
	repo, url := startServer(t)
	seed(t, repo, 25)

	out, stderr, err := execute(t, "history", "--server", url, "--page-size", "10")
	require.NoError(t, err)
	require.Equal(t, 10, strings.Count(out, "ann: note "))
	require.Contains(t, out, "note 25")
	require.NotContains(t, out, "note 15\n")
	require.Contains(t, stderr, "rerun with --all")

	out, _, err = execute(t, "history", "--server", url, "--page-size", "10", "--all")
	require.NoError(t, err)
	require.Equal(t, 25, strings.Count(out, "ann: note "))
	require.Less(t, strings.Index(out, "note 1\n"), strings.Index(out, "note 25\n"))
}

func TestHistoryEmptyRoom(t *testing.T) {
	isolate(t)
	_, url := startServer(t)

	out, _, err := execute(t, "history", "--server", url, "--room", "9")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestHistoryRejectsInvalidRoom(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "history", "--room=-1")
	require.ErrorContains(t, err, "room_id")
}

func TestTailRequiresTerminal(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "tail")
	require.ErrorIs(t, err, errNoTerminal)

	_, _, err = execute(t)
	require.ErrorIs(t, err, errNoTerminal)
}

func TestConfigRedactsSecrets(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "config", "--token", "s3cr3t-token", "--room", "4")
	require.NoError(t, err)
	require.Contains(t, out, "server_url: http://127.0.0.1:8088")
	require.Regexp(t, `room_id: "?4"?\n`, out)
	require.Contains(t, out, "[REDACTED]")
	require.NotContains(t, out, "s3cr3t-token")
}

func TestConfigFileAndEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "roomline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  room_id: 7\ntimeline:\n  page_size: 50\n"), 0o644))
	t.Setenv("ROOMLINE_TIMELINE_PAGE_SIZE", "30")

	out, _, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "# "+path)
	require.Contains(t, out, "room_id: 7")
	require.Regexp(t, `page_size: "?30"?\n`, out)

	_, _, err = execute(t, "config", "--config", filepath.Join(home, "missing.yaml"))
	require.Error(t, err)
}

func TestWriteItems(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	reply := chat.Message{
		ID: 2, RoomID: 1, FromUser: chat.User{UID: 2, Username: "bob"}, Body: "yes\nat noon",
		Type: chat.MessageTypeText, SendTime: at, Reply: &chat.ReplyRef{ID: 1, Username: "ann", Body: "lunch?"},
	}
	items := []chat.Item{
		chat.MessageItem(chat.Message{ID: 1, RoomID: 1, FromUser: chat.User{UID: 1}, Body: "lunch?", Type: chat.MessageTypeText, SendTime: at.Add(-time.Hour)}),
		chat.MarkerItem(chat.TimeMarker{Time: at, Label: "09:30"}),
		chat.MessageItem(reply),
		chat.MessageItem(chat.Message{ID: 3, RoomID: 1, FromUser: chat.User{UID: 1, Username: "ann"}, Type: chat.MessageTypeRecalled, SendTime: at}),
	}

	var buf bytes.Buffer
	p := printer{loc: time.UTC, profile: termenv.Ascii, theme: roomtui.DefaultTheme}
	require.NoError(t, p.writeItems(&buf, items))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		"2026-03-02 08:30:00 user 1: lunch?",
		"──── 09:30 ────",
		"                    ┌ ann: lunch?",
		"2026-03-02 09:30:00 bob: yes",
		"                    at noon",
		"2026-03-02 09:30:00 ann recalled a message",
	}, lines)
}

func TestWriteItemsColorsSenders(t *testing.T) {
	msg := chat.Message{
		ID: 1, RoomID: 1, FromUser: chat.User{UID: 7, Username: "ann"}, Body: "hi",
		Type: chat.MessageTypeText, SendTime: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	p := printer{loc: time.UTC, profile: termenv.ANSI256, theme: roomtui.DefaultTheme}

	var buf bytes.Buffer
	require.NoError(t, p.writeItems(&buf, []chat.Item{chat.MessageItem(msg)}))
	line := buf.String()
	require.Contains(t, line, "\x1b[")
	require.Contains(t, line, "38;5;"+roomtui.DefaultTheme.SenderColor(7))
	require.Contains(t, line, "ann")
	require.True(t, strings.HasSuffix(line, ": hi\n"))
}
