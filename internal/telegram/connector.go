// Package telegram connects the message pipeline to Telegram. It is a thin
// adapter: every inbound text message becomes an orchestrator request and
// the pipeline response is sent back to the originating chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/talkpipe/talkpipe/internal/logger"
	"github.com/talkpipe/talkpipe/internal/orchestrator"
	"github.com/talkpipe/talkpipe/internal/personality"
)

const (
	processingTimeout  = 2 * time.Minute
	sendMessageTimeout = 10 * time.Second
)

// Connector owns the Telegram client and the handler wiring.
type Connector struct {
	bot     *tgbot.Bot
	orch    *orchestrator.Orchestrator
	profile personality.Profile
	logger  *slog.Logger
}

// New creates a Connector for the given bot token. The orchestrator handles
// every non-command text message; /start replies with the configured
// greeting.
func New(token string, orch *orchestrator.Orchestrator, profile personality.Profile, log *slog.Logger) (*Connector, error) {
	c := &Connector{
		orch:    orch,
		profile: profile,
		logger:  log.With("component", "telegram"),
	}

	b, err := tgbot.New(token,
		tgbot.WithDefaultHandler(c.handleMessage),
		tgbot.WithMiddlewares(logger.Middleware(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.bot = b

	b.RegisterHandler(tgbot.HandlerTypeMessageText, "start", tgbot.MatchTypeCommandStartOnly, c.handleStart)

	return c, nil
}

// Start runs the long-polling loop until ctx is cancelled.
func (c *Connector) Start(ctx context.Context) {
	c.bot.Start(ctx)
}

func (c *Connector) handleStart(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	c.send(ctx, b, msg.Chat.ID, c.profile.GreetingMessage)
}

func (c *Connector) handleMessage(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	procCtx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	resp := c.orch.ProcessMessage(procCtx, orchestrator.Request{
		UserID:    msg.From.ID,
		Address:   "telegram:" + strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.ID),
		Text:      msg.Text,
	})

	if resp.Reason == orchestrator.ReasonAlreadyProcessing {
		c.logger.DebugContext(ctx, "Duplicate message dropped, not replying",
			"chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}
	if resp.Content == "" {
		return
	}

	c.send(ctx, b, msg.Chat.ID, resp.Content)
}

func (c *Connector) send(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	if _, err := b.SendMessage(sendCtx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		c.logger.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
	}
}
