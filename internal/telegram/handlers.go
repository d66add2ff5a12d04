package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/auth"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/session"
)

const (
	notAuthorizedText = "You are not authorized. Please start with the /start command and enter the secret word."
	authorizedText    = "You have successfully authorized! Now you can use the bot. Type /help if you want to learn about the bot's full functionality."
	badImageText      = "Please send the image in PNG or JPEG format."
	upstreamFailText  = "Failed to get a response. Please try again later."
)

// defaultRoleButtons keeps the /start keyboard in a stable order.
var defaultRoleButtons = []struct {
	Label string
	Data  string
}{
	{Label: "Companion", Data: "role_companion"},
	{Label: "Expert", Data: "role_expert"},
}

func fromUser(u *tgbotapi.User) auth.User {
	return auth.User{ID: u.ID, Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "help":
		b.handleHelp(msg)
	case "setrole":
		b.handleSetRole(msg)
	case "resetrole":
		b.handleResetRole(msg)
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	if b.orch.IsAuthorized(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "You are already authorized and can use the bot.\nBut if you want to change your default role, please choose it below.")
	}

	welcome := "Hi! I relay your messages and photos to a language model and send back its replies.\n\n" +
		"Pick a default role below. If you are not authorized yet, send the secret word afterwards."

	var row []tgbotapi.InlineKeyboardButton
	for _, btn := range defaultRoleButtons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, welcome)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	if _, err := b.s.Send(out); err != nil {
		log.Printf("failed to send welcome message: %v", err)
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	help := "Send me text or a photo (PNG/JPEG) and I will answer with the model's reply.\n\n" +
		"/setrole <text> - set a custom role steering the answers\n" +
		"/resetrole - drop the custom role and use your default one\n" +
		"/start - choose a default role"
	b.sendMessage(msg.Chat.ID, help)
}

func (b *Bot) handleSetRole(msg *tgbotapi.Message) {
	if !b.orch.IsAuthorized(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, notAuthorizedText)
		return
	}
	role := strings.TrimSpace(msg.CommandArguments())
	if role == "" {
		b.sendMessage(msg.Chat.ID, "Please specify a new role.")
		return
	}
	b.orch.SetOverrideRole(msg.From.ID, role)
	log.Printf("user %d set a new role: %s", msg.From.ID, role)
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("Your role has been changed to: %s", role))
}

func (b *Bot) handleResetRole(msg *tgbotapi.Message) {
	if !b.orch.IsAuthorized(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, notAuthorizedText)
		return
	}
	if b.orch.ResetOverrideRole(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Your role has been reset to the default role.")
		return
	}
	b.sendMessage(msg.Chat.ID, "Your role is already set to the default value.")
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if b.api != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.Printf("failed to answer callback: %v", err)
		}
	}

	if cb.Data == resetCmd {
		b.orch.ResetContext(cb.From.ID)
		b.sendMessage(cb.Message.Chat.ID, "Context has been reset.")
		return
	}

	if strings.HasPrefix(cb.Data, "role_") {
		if _, err := b.orch.SelectDefaultRole(cb.From.ID, cb.Data); err != nil {
			log.Printf("user %d selected unknown role %q: %v", cb.From.ID, cb.Data, err)
			return
		}
		log.Printf("user %d selected default role %s", cb.From.ID, cb.Data)
		text := fmt.Sprintf("You've chosen: %s.", strings.TrimPrefix(cb.Data, "role_"))
		// A role choice can arrive before authorization; the grant itself
		// still goes through the regular message path.
		if !b.orch.IsAuthorized(cb.From.ID) {
			text += "\n\nNow enter the secret word:"
		}
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
		if _, err := b.s.Send(edit); err != nil {
			log.Printf("failed to edit role message: %v", err)
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" && len(msg.Photo) == 0 {
		// Stickers, voice notes and the like are not relayed.
		return
	}
	in := session.Incoming{User: fromUser(msg.From), Text: msg.Text}

	if len(msg.Photo) > 0 {
		in.Text = msg.Caption
		img, err := b.downloadPhoto(msg.Photo)
		if err != nil {
			log.Printf("failed to download photo from user %d: %v", msg.From.ID, err)
			b.sendMessage(msg.Chat.ID, "Failed to download the image. Please try again.")
			return
		}
		in.Image = img
	}

	res, err := b.orch.Process(ctx, in)
	if err != nil {
		b.sendMessage(msg.Chat.ID, upstreamFailText)
		return
	}
	b.deliver(msg.Chat.ID, res)
}

// deliver maps a processing result to the user-facing reply. Internal
// detail (status codes, errors) never reaches the chat.
func (b *Bot) deliver(chatID int64, res session.Result) {
	switch res.Kind {
	case session.KindPromptSecret:
		b.sendMessage(chatID, notAuthorizedText)
	case session.KindGranted:
		b.sendMessage(chatID, authorizedText)
	case session.KindRateLimited:
		minutes := int(res.RetryAfter.Minutes())
		b.sendMessage(chatID, fmt.Sprintf(
			"You have exceeded the image request limit (%d per hour). You can send the next image in %d minutes.",
			b.imagesPerHour, minutes))
	case session.KindBadImage:
		b.sendMessage(chatID, badImageText)
	case session.KindReply:
		b.sendReply(chatID, res.Reply)
	}
}

// downloadPhoto fetches the largest size of the submitted photo from the
// Bot API file endpoint.
func (b *Bot) downloadPhoto(sizes []tgbotapi.PhotoSize) (*session.IncomingImage, error) {
	ps := sizes[len(sizes)-1]
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: ps.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	resp, err := http.Get(file.Link(b.api.Token))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &session.IncomingImage{Data: data, FileName: path.Base(file.FilePath)}, nil
}
