package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() Alert {
	return Alert{
		Event:  EventSyncFailed,
		Title:  "Price sync failed",
		Body:   "upstream <502>",
		Fields: map[string]string{"updated": "1", "error": "boom"},
		At:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), testAlert()))
	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, "Price sync failed", e.Title)
	assert.Equal(t, "upstream <502>", e.Description)
	assert.Equal(t, "2024-05-01T12:00:00Z", e.Timestamp)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "error", e.Fields[0].Name)
	assert.Equal(t, "boom", e.Fields[0].Value)
	assert.Equal(t, "updated", e.Fields[1].Name)
}

func TestTelegramSender(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiURL = srv.URL
	require.NoError(t, s.Send(context.Background(), testAlert()))

	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Equal(t, "<b>Price sync failed</b>\nupstream &lt;502&gt;\n<code>error: boom</code>\n<code>updated: 1</code>", got.Text)
}

func TestSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400: bad webhook")
}

type stubSender struct {
	name string
	err  error
	got  []Alert
}

func (s *stubSender) Send(_ context.Context, a Alert) error {
	s.got = append(s.got, a)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifier_DeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubSender{name: "failing", err: boom}
	ok := &stubSender{name: "ok"}

	n := New(nil, failing, ok)
	err := n.Notify(context.Background(), Alert{Event: EventSyncFailed, Title: "x"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, failing.got, 1)
	require.Len(t, ok.got, 1)
	assert.False(t, ok.got[0].At.IsZero())
}

func TestNotifier_Disabled(t *testing.T) {
	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
	assert.NoError(t, nilNotifier.Notify(context.Background(), Alert{}))
	assert.False(t, New(nil).Enabled())
}
