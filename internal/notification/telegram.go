package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	http     jsonPoster
}

// NewTelegramNotifier creates a Telegram notifier for one chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		http:     newJSONPoster("telegram"),
	}
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := sendMessage{ChatID: t.chatID, Text: formatTelegram(alert), ParseMode: "MarkdownV2"}
	if err := t.http.post(ctx, t.baseURL+"/bot"+t.botToken+"/sendMessage", msg); err != nil {
		return err
	}
	slog.Debug("telegram alert sent", "title", alert.Title)
	return nil
}

func formatTelegram(alert Alert) string {
	icon := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	// message lines are monospaced so the candidate columns line up
	return fmt.Sprintf("%s *%s*\n\n```\n%s\n```", icon,
		escapeMarkdown(alert.Title), escapeCode(alert.Message))
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
	`\`, `\\`,
)

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var codeEscaper = strings.NewReplacer("`", "\\`", `\`, `\\`)

// escapeCode escapes text inside a MarkdownV2 pre block.
func escapeCode(s string) string {
	return codeEscaper.Replace(s)
}
