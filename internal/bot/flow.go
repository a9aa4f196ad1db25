package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/core/telegram/state"
	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/session"
	"github.com/kasuwa/accbot/internal/texts"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

func (b *Bot) handlePhone(c tele.Context) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	ctrl, ok := b.arena.Get(uid)
	if !ok {
		b.fsm.Clear(uid)
		return reply(c, texts.Get(lang, texts.SessionExpired))
	}

	raw := strings.TrimSpace(c.Text())
	err := ctrl.Submit(ctx, raw)
	if err == nil {
		b.fsm.SetState(uid, stateAwaitCode)
		b.fsm.SetTemp(uid, tempAttempts, 0)
		return reply(c, texts.Getf(lang, texts.OTPRequest, ctrl.Identifier()))
	}

	var rej *domain.RejectedError
	var rl *domain.RateLimitedError
	switch {
	case errors.As(err, &rej):
		switch rej.Reason {
		case domain.RejectInvalidIdentifier:
			return reply(c, texts.Get(lang, texts.PhoneInvalid))
		case domain.RejectOutsideWindow:
			b.teardown(uid)
			return reply(c, texts.Getf(lang, texts.IntakeClosed, b.intake.OpensAt()))
		case domain.RejectCooldown:
			b.teardown(uid)
			return reply(c, texts.Get(lang, texts.PhoneCooldown))
		case domain.RejectDuplicate:
			b.teardown(uid)
			return reply(c, texts.Getf(lang, texts.PhoneDuplicate, raw))
		}
		b.teardown(uid)
		return reply(c, texts.Get(lang, texts.LoginFail))
	case errors.As(err, &rl):
		// The controller is still unbound; the same number can be retried
		// once the wait elapses.
		return reply(c, texts.Getf(lang, texts.RateLimited, waitString(rl.RetryAfter)))
	case errors.Is(err, domain.ErrBusy):
		return reply(c, texts.Get(lang, texts.Busy))
	case errors.Is(err, domain.ErrNoSession):
		b.teardown(uid)
		return reply(c, texts.Get(lang, texts.SessionExpired))
	}

	b.teardown(uid)
	logger.TG.Error("submission failed",
		slog.String("event", "flow.submit"),
		slog.Int64("user_id", uid),
		slog.String("err", err.Error()),
	)
	return reply(c, texts.Get(lang, texts.LoginFail))
}

func (b *Bot) handleCode(c tele.Context) error {
	return b.handleChallenge(c, stateAwaitCode)
}

func (b *Bot) handleSecret(c tele.Context) error {
	return b.handleChallenge(c, stateAwaitSecret)
}

// handleChallenge drives both challenge steps; they differ only in which
// provider call runs and which "wrong answer" text is used.
func (b *Bot) handleChallenge(c tele.Context, step state.State) error {
	ctx := buildCtx(c)
	uid := c.Sender().ID
	lang := b.lang(ctx, uid)

	ctrl, ok := b.arena.Get(uid)
	if !ok {
		b.fsm.Clear(uid)
		return reply(c, texts.Get(lang, texts.SessionExpired))
	}

	input := strings.TrimSpace(c.Text())

	var err error
	wrongKey := texts.OTPInvalid
	if step == stateAwaitSecret {
		wrongKey = texts.SecretInvalid
		err = ctrl.ProvideSecret(ctx, input)
	} else {
		err = ctrl.ProvideCode(ctx, input)
	}

	if err == nil {
		switch ctrl.State() {
		case session.StateAwaitingSecondFactor:
			b.fsm.SetState(uid, stateAwaitSecret)
			b.fsm.SetTemp(uid, tempAttempts, 0)
			return reply(c, texts.Get(lang, texts.TwoFactorAsk))
		case session.StateSucceeded:
			return b.finishSuccess(c, ctx, uid, lang, ctrl.Identifier())
		default:
			// A concurrent cancel or sweep finalized the attempt; its own
			// reply already went out.
			b.teardown(uid)
			return nil
		}
	}

	var rej *domain.RejectedError
	var rl *domain.RateLimitedError
	switch {
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrInvalidSecret):
		if b.bumpAttempts(uid) >= b.cfg.Session.MaxAttempts {
			_ = ctrl.Cancel(ctx)
			b.markUnverified(ctx, uid)
			b.teardown(uid)
			return reply(c, texts.Get(lang, texts.AttemptsOver))
		}
		return reply(c, texts.Get(lang, wrongKey))
	case errors.As(err, &rl):
		return reply(c, texts.Getf(lang, texts.RateLimited, waitString(rl.RetryAfter)))
	case errors.As(err, &rej) && rej.Reason == domain.RejectBackoffTooLong:
		b.markUnverified(ctx, uid)
		b.teardown(uid)
		b.notifyFailure(ctx, uid, ctrl.Identifier(), "backoff too long")
		return reply(c, texts.Get(lang, texts.BackoffTooLong))
	case errors.Is(err, domain.ErrBusy):
		return reply(c, texts.Get(lang, texts.Busy))
	case errors.Is(err, domain.ErrNoSession):
		b.teardown(uid)
		return reply(c, texts.Get(lang, texts.SessionExpired))
	}

	b.markUnverified(ctx, uid)
	b.teardown(uid)
	logger.TG.Error("challenge failed",
		slog.String("event", "flow.challenge"),
		slog.Int64("user_id", uid),
		slog.String("err", err.Error()),
	)
	b.notifyFailure(ctx, uid, ctrl.Identifier(), "provider fault")
	return reply(c, texts.Get(lang, texts.LoginFail))
}

func (b *Bot) finishSuccess(c tele.Context, ctx context.Context, uid int64, lang, identifier string) error {
	if err := b.users.CreditVerified(ctx, uid, b.cfg.Payout.RatePerAccount); err != nil {
		logger.TG.Error("credit failed",
			slog.String("event", "flow.credit"),
			slog.Int64("user_id", uid),
			slog.String("err", err.Error()),
		)
	}
	b.teardown(uid)

	if b.notifier != nil {
		msg := fmt.Sprintf("📥 Account acquired: %s (submitter %d)", identifier, uid)
		if err := b.notifier.NotifyOperator(ctx, msg); err != nil {
			logger.TG.Warn("operator notify failed",
				slog.String("event", "flow.notify"),
				slog.String("err", err.Error()),
			)
		}
	}

	return reply(c, texts.Getf(lang, texts.LoginSuccess, identifier))
}

func (b *Bot) notifyFailure(ctx context.Context, uid int64, identifier, cause string) {
	if b.notifier == nil {
		return
	}
	msg := fmt.Sprintf("❌ Login failed: %s (submitter %d, %s)", identifier, uid, cause)
	if err := b.notifier.NotifyOperator(ctx, msg); err != nil {
		logger.TG.Warn("operator notify failed",
			slog.String("event", "flow.notify"),
			slog.String("err", err.Error()),
		)
	}
}

func (b *Bot) markUnverified(ctx context.Context, uid int64) {
	if err := b.users.IncrementUnverified(ctx, uid); err != nil {
		logger.TG.Error("unverified bump failed",
			slog.String("event", "flow.unverified"),
			slog.Int64("user_id", uid),
			slog.String("err", err.Error()),
		)
	}
}

func waitString(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return d.Round(time.Second).String()
}
