package service

import (
	"context"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/common"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	messageLimit = 2000
	sendTimeout  = 15 * time.Second
)

type LoginStatus byte

const (
	LoginSuccess LoginStatus = 1
	LoginFail    LoginStatus = 0
)

// Notifier pushes admin notices to Telegram chats. A nil Notifier, or one built without
// a token, drops every message.
type Notifier struct {
	bot     *telego.Bot
	chatIds []int64
}

// NewNotifier builds a notifier from a bot token and a comma separated list of chat ids.
// An empty token yields a disabled notifier and no error.
func NewNotifier(token, chatIds string) (*Notifier, error) {
	if token == "" {
		return &Notifier{}, nil
	}
	ids, err := parseChatIds(chatIds)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, common.NewErrorf("telegram token set but no chat id in %q", chatIds)
	}
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot, chatIds: ids}, nil
}

func parseChatIds(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.bot != nil
}

// splitMessage cuts msg on blank lines into chunks no longer than limit where possible.
func splitMessage(msg string, limit int) []string {
	if len(msg) <= limit {
		return []string{msg}
	}
	var chunks []string
	for _, part := range strings.Split(msg, "\n\n") {
		last := len(chunks) - 1
		if last < 0 || len(chunks[last])+len(part)+2 > limit {
			chunks = append(chunks, part)
		} else {
			chunks[last] += "\n\n" + part
		}
	}
	return chunks
}

// Send delivers msg to every configured chat and returns the last error.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.Enabled() || msg == "" {
		return nil
	}
	var lastErr error
	for _, chatId := range n.chatIds {
		for _, chunk := range splitMessage(msg, messageLimit) {
			params := tu.Message(tu.ID(chatId), chunk).WithParseMode(telego.ModeHTML)
			if _, err := n.bot.SendMessage(ctx, params); err != nil {
				logger.Warning("Error sending telegram message:", err)
				lastErr = err
			}
		}
	}
	return lastErr
}

// Notify sends msg in the background so request handlers never wait on Telegram.
func (n *Notifier) Notify(msg string) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_ = n.Send(ctx, msg)
	}()
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

func (n *Notifier) RegistrationNotify(email, ip string) {
	n.Notify(registrationMessage(hostname(), email, ip, time.Now()))
}

// AdminLoginNotify reports login attempts on administrator accounts.
func (n *Notifier) AdminLoginNotify(email, ip string, status LoginStatus) {
	n.Notify(adminLoginMessage(hostname(), email, ip, status, time.Now()))
}

// messages go out as HTML, so user supplied values are escaped
func registrationMessage(host, email, ip string, at time.Time) string {
	return fmt.Sprintf("🆕 New account on %s\nEmail: %s\nIP: %s\nTime: %s",
		html.EscapeString(host), html.EscapeString(email), html.EscapeString(ip), at.Format("2006-01-02 15:04:05"))
}

func adminLoginMessage(host, email, ip string, status LoginStatus, at time.Time) string {
	head := "✅ Administrator logged in"
	if status == LoginFail {
		head = "❗ Failed administrator login"
	}
	return fmt.Sprintf("%s on %s\nEmail: %s\nIP: %s\nTime: %s",
		head, html.EscapeString(host), html.EscapeString(email), html.EscapeString(ip), at.Format("2006-01-02 15:04:05"))
}

// EnrichmentNotify summarizes a background enrichment run that changed something.
func (n *Notifier) EnrichmentNotify(enriched, removed, failed int) {
	if enriched+removed+failed == 0 {
		return
	}
	n.Notify(fmt.Sprintf("🎬 Enrichment run on %s\nEnriched: %d\nRemoved (unknown to OMDB): %d\nFailed: %d",
		html.EscapeString(hostname()), enriched, removed, failed))
}
