package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Telegram sends alerts as bot messages. The user's contact is the chat id.
type Telegram struct {
	api    *tgbotapi.BotAPI
	Logger logger
}

// NewTelegram authenticates the bot against endpoint, tgbotapi.APIEndpoint when empty.
func NewTelegram(token string, endpoint string, httpClient *http.Client, l logger) (*Telegram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultCatalogTimeout}
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "error creating telegram bot api")
	}
	l.Infof("NewTelegram: authorized as @%s", api.Self.UserName)
	return &Telegram{api: api, Logger: l}, nil
}

func (t *Telegram) Send(_ context.Context, n Notification) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(n.Contact), 10, 64)
	if err != nil || chatID == 0 {
		return errors.Wrapf(ErrNotifyFailed, "telegram, watch: %s, invalid chat id: %q", n.WatchID, n.Contact)
	}
	msg := tgbotapi.NewMessage(chatID, FormatAlertMessage(n))
	if _, err = t.api.Send(msg); err != nil {
		return errors.Wrapf(ErrNotifyFailed, "telegram, watch: %s, err: %v", n.WatchID, err)
	}
	return nil
}
