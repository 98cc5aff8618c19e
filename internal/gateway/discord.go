package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/stepwise/internal/observability"
	"go.uber.org/zap"
)

// Discord talks to the operator through one channel.
type Discord struct {
	Session   *discordgo.Session
	ChannelID string
	Logger    *observability.Logger

	replies chan string
	remove  func()
}

var _ Messenger = (*Discord)(nil)

func NewDiscord(token, channelID string, logger *observability.Logger) (*Discord, error) {
	if channelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Discord{
		Session:   s,
		ChannelID: channelID,
		Logger:    logger,
		replies:   make(chan string, 16),
	}, nil
}

func (d *Discord) Start(ctx context.Context) error {
	d.remove = d.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ChannelID != d.ChannelID || m.Author == nil || m.Author.ID == s.State.User.ID {
			return
		}
		select {
		case d.replies <- m.Content:
		case <-ctx.Done():
		default:
			d.Logger.Zap().Warn("dropping discord message, reply buffer full", zap.String("author", m.Author.Username))
		}
	})
	if err := d.Session.Open(); err != nil {
		d.remove()
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

func (d *Discord) Replies() <-chan string {
	return d.replies
}

func (d *Discord) Send(text string) error {
	_, err := d.Session.ChannelMessageSend(d.ChannelID, text)
	return err
}

func (d *Discord) Stop() error {
	if d.remove != nil {
		d.remove()
	}
	return d.Session.Close()
}
