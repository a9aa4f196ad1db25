// Package notify delivers out-of-band messages to submitters and the
// operator channel.
package notify

import (
	"context"
	"sync"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/core/telegram/sender"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Notifier sends messages outside the usual request/reply cycle.
type Notifier interface {
	// NotifySubmitter sends a direct message to the given user.
	NotifySubmitter(ctx context.Context, userID int64, text string) error
	// NotifyOperator posts to the operator channel.
	NotifyOperator(ctx context.Context, text string) error
}

// Bot is the telebot-backed Notifier. Sends go through the async dispatcher
// so callers never block on the Telegram API.
type Bot struct {
	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	operatorID int64
}

// NewBot builds a Notifier on top of an initialized bot.
func NewBot(bot *tele.Bot, dispatcher *sender.Dispatcher, operatorID int64) *Bot {
	return &Bot{bot: bot, dispatcher: dispatcher, operatorID: operatorID}
}

func (n *Bot) send(ctx context.Context, action string, to int64, text string) error {
	run := func() error {
		_, err := n.bot.Send(&tele.User{ID: to}, text)
		return err
	}
	if n.dispatcher == nil {
		return run()
	}
	if err := n.dispatcher.Enqueue(ctx, action, run); err != nil {
		logger.TG.Warn("notify enqueue failed",
			slog.String("event", "notify.fallback"),
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return nil
}

func (n *Bot) NotifySubmitter(ctx context.Context, userID int64, text string) error {
	return n.send(ctx, "notify.submitter", userID, text)
}

func (n *Bot) NotifyOperator(ctx context.Context, text string) error {
	return n.send(ctx, "notify.operator", n.operatorID, text)
}

// Recorder captures notifications in memory for tests.
type Recorder struct {
	mu        sync.Mutex
	Submitter map[int64][]string
	Operator  []string
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Submitter: make(map[int64][]string)}
}

func (r *Recorder) NotifySubmitter(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Submitter[userID] = append(r.Submitter[userID], text)
	return nil
}

func (r *Recorder) NotifyOperator(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Operator = append(r.Operator, text)
	return nil
}

// OperatorMessages returns a copy of captured operator posts.
func (r *Recorder) OperatorMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Operator))
	copy(out, r.Operator)
	return out
}
