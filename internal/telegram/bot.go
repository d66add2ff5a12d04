package telegram

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/session"
)

const resetCmd = "reset_ctx"

type Bot struct {
	api           *tgbotapi.BotAPI
	s             sender
	orch          *session.Orchestrator
	parseMode     string
	imagesPerHour int
}

func New(botToken string, orch *session.Orchestrator, parseMode string, imagesPerHour int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:           api,
		s:             botAPISender{api: api},
		orch:          orch,
		parseMode:     parseMode,
		imagesPerHour: imagesPerHour,
	}, nil
}

// Start polls for updates until the channel closes. Each update is
// handled in its own goroutine; ordering per user is enforced by the
// orchestrator's session locks.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		update := update
		switch {
		case update.Message != nil && update.Message.IsCommand():
			go b.handleCommand(update.Message)
		case update.Message != nil:
			go b.handleIncomingMessage(ctx, update.Message)
		case update.CallbackQuery != nil:
			go b.handleCallback(update.CallbackQuery)
		}
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

// sendReply delivers an assistant reply with the context-reset button.
func (b *Bot) sendReply(chatID int64, text string) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reset context", resetCmd),
		),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode
	msg.ReplyMarkup = kb
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}
