package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"apptchat/internal/config"
	"apptchat/internal/domain"
	"apptchat/internal/metrics"
	"apptchat/internal/models"
)

// Bot is the Telegram front-end: every incoming text message is piped
// to the dispatcher, the one reply it returns goes back to the chat.
type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher domain.Dispatcher
	sessions   domain.SessionRepository
	config     *config.Config
	logger     zerolog.Logger
}

func NewBot(token string, debug bool, dispatcher domain.Dispatcher, sessions domain.SessionRepository, cfg *config.Config, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	api.Debug = debug

	return &Bot{
		api:        api,
		dispatcher: dispatcher,
		sessions:   sessions,
		config:     cfg,
		logger:     logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.api.Self.UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	requestID := uuid.New().String()
	logger := b.logger.With().Str("request_id", requestID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic in update handler")
		}
	}()

	msg := update.Message
	userID := strconv.FormatInt(msg.From.ID, 10)
	sessionID := "tg:" + strconv.FormatInt(msg.Chat.ID, 10)

	metrics.IncChatMessage("telegram")

	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, "Сайн байна уу! I can help you book, check and cancel appointments. Just tell me what you need.")
		return
	case "clear":
		if err := b.dispatcher.ClearHistory(updateCtx, sessionID); err != nil {
			logger.Error().Err(err).Msg("failed to clear history")
		}
		b.reply(msg.Chat.ID, "Conversation history cleared.")
		return
	}

	allowed, err := b.sessions.CheckRateLimit(updateCtx, sessionID,
		b.rateLimitMessages(), b.rateLimitWindow())
	if err != nil {
		logger.Warn().Err(err).Msg("rate limit check failed, allowing message")
	} else if !allowed {
		b.reply(msg.Chat.ID, "Too many messages, please slow down a little.")
		return
	}

	reply, err := b.dispatcher.ProcessMessage(updateCtx, sessionID, userID, msg.Text)
	if err != nil {
		logger.Error().Err(err).Msg("dispatcher failed")
		b.reply(msg.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	b.reply(msg.Chat.ID, reply)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

func (b *Bot) rateLimitMessages() int {
	if b.config.Agent.RateLimitMessages > 0 {
		return b.config.Agent.RateLimitMessages
	}
	return models.RateLimitMessages
}

func (b *Bot) rateLimitWindow() time.Duration {
	if b.config.Agent.RateLimitWindow > 0 {
		return time.Duration(b.config.Agent.RateLimitWindow) * time.Second
	}
	return time.Duration(models.RateLimitWindow) * time.Second
}
