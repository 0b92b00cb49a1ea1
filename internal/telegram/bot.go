package telegram

import (
	"context"
	"fmt"
	"log"

	"go-resume-bumper/internal/conversation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Bot struct {
	api *tgbotapi.BotAPI
}

type Option func(*options)

type options struct {
	endpoint string
	debug    bool
}

// WithAPIEndpoint points the bot at another Bot API server, e.g. a local one.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

func NewBot(token string, opts ...Option) (*Bot, error) {
	o := options{endpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, o.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	//turn this on in case of debug
	api.Debug = o.debug

	log.Printf("🤖 Authorized on account @%s", api.Self.UserName)
	return &Bot{api: api}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Send delivers a conversation reply using HTML parse mode.
func (b *Bot) Send(ctx context.Context, reply conversation.Reply) error {
	return b.Notify(ctx, reply.ChatID, reply.Text)
}

// Notify sends an unsolicited message, e.g. a renewal notice.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML //use HTML for bold/italic
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return nil
}

// SetWebhook registers url with Telegram so updates are pushed to the server.
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	log.Printf("🔗 Webhook registered")
	return nil
}

// Run long-polls updates and hands every chat message to submit until ctx is
// cancelled. Any webhook is removed first, since Telegram refuses getUpdates
// while one is set.
func (b *Bot) Run(ctx context.Context, submit func(conversation.Message) error) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	log.Printf("📡 Polling for updates...")
	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 Stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := MessageFromUpdate(update)
			if !ok {
				continue
			}
			if err := submit(msg); err != nil {
				log.Printf("⚠️ Failed to submit update %d: %v", update.UpdateID, err)
			}
		}
	}
}

// MessageFromUpdate extracts the chat message of an update. Updates without
// a message from a user (edits, callbacks, channel posts) yield ok=false.
func MessageFromUpdate(update tgbotapi.Update) (conversation.Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return conversation.Message{}, false
	}

	return conversation.Message{
		UserID:  m.From.ID,
		ChatID:  m.Chat.ID,
		Private: m.Chat.IsPrivate(),
		IsText:  m.Text != "",
		Text:    m.Text,
	}, true
}
