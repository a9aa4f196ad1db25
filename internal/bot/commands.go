package bot

import (
	"errors"
	"strings"

	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/session"
	"github.com/kasuwa/accbot/internal/texts"

	tele "gopkg.in/telebot.v4"
)

func (b *Bot) handleStart(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	if !b.intake.IsOpen(b.now()) {
		return reply(c, texts.Getf(lang, texts.IntakeClosed, b.intake.OpensAt()))
	}

	ctrl, err := b.arena.Begin(uid)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			// A fresh controller that never got a number can be reused.
			if ctrl != nil && ctrl.State() == session.StateAwaitingIdentifier {
				b.fsm.SetState(uid, stateAwaitPhone)
				return reply(c, texts.Get(lang, texts.Start))
			}
			return reply(c, texts.Get(lang, texts.Busy))
		}
		return err
	}

	b.fsm.Clear(uid)
	b.fsm.SetState(uid, stateAwaitPhone)
	return reply(c, texts.Get(lang, texts.Start))
}

func (b *Bot) handleCancel(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	cancelled := b.fsm.InProgress(uid)
	if ctrl, ok := b.arena.Get(uid); ok {
		if !ctrl.State().Terminal() {
			cancelled = true
		}
		if err := ctrl.Cancel(ctx); err != nil {
			return err
		}
	}
	b.teardown(uid)

	if !cancelled {
		return reply(c, texts.Get(lang, texts.NothingToCancel))
	}
	return reply(c, texts.Get(lang, texts.Cancelled))
}

func (b *Bot) handleBalance(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID

	u, err := b.users.Get(ctx, uid)
	if err != nil {
		return err
	}
	lang := u.Language
	if !texts.Supported(lang) {
		lang = texts.DefaultLanguage
	}
	return reply(c, texts.Getf(lang, texts.Balance,
		u.TelegramID, u.VerifiedCount, u.UnverifiedCount, u.Balance))
}

func (b *Bot) handleLanguage(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	markup.Reply(markup.Row(markup.Text("English"), markup.Text("Hausa")))

	b.fsm.SetState(uid, stateAwaitLang)
	return replyMarkup(c, texts.Get(lang, texts.LanguageAsk), markup)
}

func (b *Bot) handleLanguageChoice(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID

	var lang string
	switch strings.TrimSpace(c.Text()) {
	case "English":
		lang = "en"
	case "Hausa":
		lang = "ha"
	default:
		return reply(c, texts.Get(b.lang(ctx, uid), texts.LanguageAsk))
	}

	if err := b.users.SetLanguage(ctx, uid, lang); err != nil {
		return err
	}
	b.fsm.ClearState(uid)
	return replyMarkup(c, texts.Get(lang, texts.LanguageSet), &tele.ReplyMarkup{RemoveKeyboard: true})
}

func (b *Bot) handleWithdraw(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	if !b.withdraw.WindowOpen(b.now()) {
		return reply(c, texts.Getf(lang, texts.PayoutClosed, b.withdraw.OpensAt()))
	}
	if _, err := b.withdraw.Eligible(ctx, uid); err != nil {
		var rej *domain.RejectedError
		if errors.As(err, &rej) && rej.Reason == domain.RejectNothingEligible {
			return reply(c, texts.Get(lang, texts.NothingEligible))
		}
		return err
	}

	b.fsm.SetState(uid, stateAwaitBank)
	return reply(c, texts.Get(lang, texts.WithdrawAsk))
}

func (b *Bot) handleBankDetails(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	details := strings.TrimSpace(c.Text())
	if details == "" {
		return reply(c, texts.Get(lang, texts.WithdrawAsk))
	}

	_, err := b.withdraw.Request(ctx, uid, c.Sender().Username, details)
	if err != nil {
		b.fsm.ClearState(uid)
		var rej *domain.RejectedError
		if errors.As(err, &rej) {
			switch rej.Reason {
			case domain.RejectOutsideWindow:
				return reply(c, texts.Getf(lang, texts.PayoutClosed, b.withdraw.OpensAt()))
			case domain.RejectNothingEligible:
				return reply(c, texts.Get(lang, texts.NothingEligible))
			}
		}
		return err
	}

	b.fsm.ClearState(uid)
	return reply(c, texts.Get(lang, texts.WithdrawDone))
}
