// Package bot wires the Telegram surface: commands, conversation states, and
// the mapping from service errors to localized replies.
package bot

import (
	"context"
	"time"

	coreconfig "github.com/kasuwa/accbot/core/config"
	tg "github.com/kasuwa/accbot/core/telegram"
	"github.com/kasuwa/accbot/core/telegram/commands"
	"github.com/kasuwa/accbot/core/telegram/router"
	"github.com/kasuwa/accbot/core/telegram/state"
	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/notify"
	"github.com/kasuwa/accbot/internal/session"
	"github.com/kasuwa/accbot/internal/store"
	"github.com/kasuwa/accbot/internal/texts"
	"github.com/kasuwa/accbot/internal/withdraw"

	tele "gopkg.in/telebot.v4"
)

// Conversation states.
const (
	stateAwaitPhone  state.State = "await_phone"
	stateAwaitCode   state.State = "await_code"
	stateAwaitSecret state.State = "await_secret"
	stateAwaitBank   state.State = "await_bank"
	stateAwaitLang   state.State = "await_language"
)

const tempAttempts = "attempts"

// Bot holds the handler dependencies.
type Bot struct {
	cfg      *coreconfig.Config
	fsm      state.Manager
	arena    *session.Arena
	users    store.Users
	accounts store.Accounts
	withdraw *withdraw.Service
	notifier notify.Notifier
	intake   gate.Window
	now      func() time.Time
}

// Options collects the Bot's collaborators.
type Options struct {
	Config   *coreconfig.Config
	FSM      state.Manager
	Arena    *session.Arena
	Users    store.Users
	Accounts store.Accounts
	Withdraw *withdraw.Service
	Intake   gate.Window
	Now      func() time.Time
}

// New builds the Bot and registers its conversation handlers.
func New(opts Options) *Bot {
	b := &Bot{
		cfg:      opts.Config,
		fsm:      opts.FSM,
		arena:    opts.Arena,
		users:    opts.Users,
		accounts: opts.Accounts,
		withdraw: opts.Withdraw,
		intake:   opts.Intake,
		now:      opts.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}

	state.RegisterHandler(stateAwaitPhone, b.handlePhone)
	state.RegisterHandler(stateAwaitCode, b.handleCode)
	state.RegisterHandler(stateAwaitSecret, b.handleSecret)
	state.RegisterHandler(stateAwaitBank, b.handleBankDetails)
	state.RegisterHandler(stateAwaitLang, b.handleLanguageChoice)

	return b
}

// SetNotifier wires the notifier once the bot runtime exists.
func (b *Bot) SetNotifier(n notify.Notifier) {
	b.notifier = n
	b.withdraw.SetNotifier(n)
}

// Registry returns the command registry for this bot.
func (b *Bot) Registry() *tg.Registry {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     b.handleStart,
		Description: "Sell a Telegram account",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     b.handleCancel,
		Description: "Cancel the current submission",
	})
	reg.RegisterCommand("/balance", commands.Command{
		Handler:     b.handleBalance,
		Description: "Show your balance and counters",
		Aliases:     []string{"account_balance"},
	})
	reg.RegisterCommand("/language", commands.Command{
		Handler:     b.handleLanguage,
		Description: "Choose your language",
	})
	reg.RegisterCommand("/withdraw", commands.Command{
		Handler:     b.handleWithdraw,
		Description: "Request payment for verified accounts",
	})

	reg.RegisterCommand("/user_accounts", commands.Command{
		Handler:     b.handleUserAccounts,
		Description: "Show a submitter's account records",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/mark_paid", commands.Command{
		Handler:     b.handleMarkPaid,
		Description: "Settle a submitter's eligible accounts",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/completed_today", commands.Command{
		Handler:     b.handleCompletedToday,
		Description: "Count accounts settled today",
		AdminOnly:   true,
		Hidden:      true,
	})

	reg.SetTextFallback(b.handleUnknownText)
	return reg
}

// Routes builds the full route table: wrapped commands plus the text route
// that feeds active conversations into the FSM.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: b.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(b.fsm, reg, router.TextOptions{})...)
	return routes
}

// lang resolves the user's message language, defaulting when the profile is
// missing or holds an unsupported value.
func (b *Bot) lang(ctx context.Context, userID int64) string {
	u, err := b.users.Get(ctx, userID)
	if err != nil || u == nil || !texts.Supported(u.Language) {
		return texts.DefaultLanguage
	}
	return u.Language
}

func (b *Bot) handleUnknownText(c tele.Context) error {
	ctx := buildCtx(c)
	return reply(c, texts.Get(b.lang(ctx, c.Sender().ID), texts.Unknown))
}

// teardown drops both the login controller and the conversation state.
func (b *Bot) teardown(userID int64) {
	b.arena.Remove(userID)
	b.fsm.Clear(userID)
}
