// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/k1ic/pm-stats/internal/catalog"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a sampling error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(slug string, runErr error) error {
	text := fmt.Sprintf("⚠️ *Sampling error* for `%s`\n`%s`",
		escapeMarkdownV2(slug), escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRunSummary sends a completion notification for one sampling run.
func (c *Client) SendRunSummary(run catalog.Run) error {
	return c.sendMarkdownV2(formatRunSummary(run))
}

// formatRunSummary formats a finished run into a Telegram MarkdownV2 message.
func formatRunSummary(run catalog.Run) string {
	status := "✅"
	if run.Failures > 0 {
		status = "⚠️"
	}

	message := fmt.Sprintf("%s *Sampling run finished*\n\n", status)
	message += fmt.Sprintf("🪙 `%s`\n", escapeMarkdownV2(run.Slug))
	message += fmt.Sprintf("🕐 %s %s\n",
		escapeMarkdownV2(run.Date), escapeMarkdownV2(run.HourLabel))
	message += fmt.Sprintf("📊 %d cycles, %d samples, %d failures\n",
		run.Cycles, run.Samples, run.Failures)

	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		elapsed := run.FinishedAt.Sub(run.StartedAt).Round(time.Second)
		message += fmt.Sprintf("⏱ %s\n", escapeMarkdownV2(elapsed.String()))
	}
	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
