package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

// Telegram sends signal alerts to a chat via the Telegram Bot API's sendMessage
// endpoint. No pack repo carries a dedicated Telegram client library, and the
// call is a single POST with URL-encoded parameters in the query string — a
// bespoke client adds no value over
// net/http, so this is deliberately the one stdlib-only external
// collaborator in the tree (see DESIGN.md).
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	log      *logger.Logger
}

// NewTelegram builds a Telegram notifier posting to the given chat.
func NewTelegram(botToken, chatID string, log *logger.Logger) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// SendSignalAlert implements Notifier. Failures are logged, never returned:
// the core does not await notifier success (§6).
func (t *Telegram) SendSignalAlert(ctx context.Context, sig models.Signal) {
	text := formatSignalMessage(sig)
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		t.log.Error("telegram notifier: build request", err, map[string]interface{}{"token": sig.TokenAddress})
		return
	}
	req.URL.RawQuery = form.Encode()

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Error("telegram notifier: send", err, map[string]interface{}{"token": sig.TokenAddress})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		t.log.Warning("telegram notifier: non-2xx response", map[string]interface{}{"status": resp.StatusCode, "token": sig.TokenAddress})
	}
}

func formatSignalMessage(sig models.Signal) string {
	return fmt.Sprintf(
		"*Signal*: `%s`\nInstability: %.2f\nEntry: $%.8f\nConfidence: %.0f%%\nSize: %.1f%%\nSL: $%.8f  TP1: $%.8f",
		sig.TokenAddress, sig.InstabilityIndex, sig.EntryPrice, sig.BayesianConfidence*100, sig.KellySize*100, sig.StopLoss, sig.TakeProfit1,
	)
}
