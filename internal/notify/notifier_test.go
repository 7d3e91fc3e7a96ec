package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.sent = append(s.sent, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFilter(t *testing.T) {
	testCases := []struct {
		name     string
		allow    []string
		event    string
		expected int
	}{
		{"empty allow list forwards all", nil, "order_sold", 1},
		{"allowed event", []string{"order_sold", " paused "}, "paused", 1},
		{"filtered event", []string{"order_sold"}, "order_listed", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &stubSender{name: "stub"}
			n := NewNotifier([]Sender{s}, tc.allow, discardLogger())
			require.NoError(t, n.Notify(context.Background(), tc.event, "title", "msg"))
			require.Len(t, s.sent, tc.expected)
		})
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "paused", "Marketplace paused", "")
	require.ErrorContains(t, err, "bad: boom")
	require.Len(t, good.sent, 1)
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Order sold", "Order #1"))
	require.Equal(t, "**Order sold**\nOrder #1", got["content"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer failing.Close()
	require.ErrorContains(t, NewDiscordSender(failing.URL).Send(context.Background(), "t", "m"), "unexpected status 429")
}
