package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type TelegramNotifier struct {
	Token   string
	ChatID  string
	Retries uint64
	Delay   time.Duration

	apiURL string // overridden in tests
	client *http.Client
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	if retries < 1 {
		retries = 3
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		Retries: uint64(retries),
		Delay:   delay,
		apiURL:  fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(message string) error {
	resp, err := t.client.PostForm(t.apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

// SendWithRetry retries with exponential backoff so a flaky network
// does not drop an alert that may be the operator's only signal.
func (t *TelegramNotifier) SendWithRetry(message string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.Delay
	policy := backoff.WithMaxRetries(b, t.Retries)
	return backoff.Retry(func() error {
		return t.Send(message)
	}, policy)
}
