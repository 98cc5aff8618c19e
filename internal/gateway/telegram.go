package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/stepwise/internal/observability"
	"go.uber.org/zap"
)

// Telegram talks to a single operator chat.
type Telegram struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
	Logger *observability.Logger

	replies chan string
}

var _ Messenger = (*Telegram)(nil)

func NewTelegram(token, chatID string, logger *observability.Logger) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid chat ID: %s", chatID)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	logger.Zap().Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &Telegram{
		Bot:     bot,
		ChatID:  id,
		Logger:  logger,
		replies: make(chan string, 16),
	}, nil
}

func (tg *Telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.Bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message == nil || update.Message.Chat.ID != tg.ChatID {
				continue
			}
			select {
			case tg.replies <- update.Message.Text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (tg *Telegram) Replies() <-chan string {
	return tg.replies
}

func (tg *Telegram) Send(text string) error {
	msg := tgbotapi.NewMessage(tg.ChatID, text)
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *Telegram) Stop() error {
	// The update loop exits once the pending long poll returns.
	tg.Bot.StopReceivingUpdates()
	return nil
}
