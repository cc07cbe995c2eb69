package notifier

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"gradewatch/internal/watcher"
)

// Telegram caps messages at 4096 characters; stay under it.
const telegramChunkRunes = 4000

type TelegramConfig struct {
	Token     string
	ChatID    int64
	ThreadID  int
	ParseMode string
	// APIURL overrides the Bot API endpoint (tests, local bot servers).
	APIURL string
}

// Telegram sends to one chat (and optional forum thread). The bot runs
// offline: it never polls for updates.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	opts *tele.SendOptions
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: empty token")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, URL: cfg.APIURL, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		opts: &tele.SendOptions{
			ParseMode:             tele.ParseMode(cfg.ParseMode),
			DisableWebPagePreview: true,
			ThreadID:              cfg.ThreadID,
		},
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg watcher.Message) error {
	text := msg.Title
	if msg.Body != "" {
		text += "\n\n" + msg.Body
	}
	for _, chunk := range splitText(text, telegramChunkRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(t.chat, chunk, t.opts); err != nil {
			return err
		}
	}
	return nil
}

// splitText cuts s into pieces of at most n runes, preferring line breaks.
func splitText(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	for utf8.RuneCountInString(s) > n {
		cut := byteOffset(s, n)
		if i := strings.LastIndexByte(s[:cut], '\n'); i > 0 {
			cut = i + 1
		}
		out = append(out, strings.TrimRight(s[:cut], "\n"))
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func byteOffset(s string, runes int) int {
	i := 0
	for pos := range s {
		if i == runes {
			return pos
		}
		i++
	}
	return len(s)
}
