package notifier

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	n := NewTelegramNotifier("token", "chat", 2, time.Millisecond)
	n.apiURL = server.URL
	return n
}

func TestTelegramSend(t *testing.T) {
	var got string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.Form.Get("text")
	})

	require.NoError(t, n.Send("hello"))
	assert.Equal(t, "hello", got)
}

func TestTelegramSendWithRetryRecovers(t *testing.T) {
	calls := 0
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	require.NoError(t, n.SendWithRetry("alert"))
	assert.Equal(t, 3, calls)
}

func TestTelegramSendWithRetryGivesUp(t *testing.T) {
	calls := 0
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := n.SendWithRetry("alert")
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt plus two retries
}
