package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/texts"

	tele "gopkg.in/telebot.v4"
)

func parseSubmitterArg(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) handleUserAccounts(c tele.Context) error {
	ctx := buildCtx(c)
	id, ok := parseSubmitterArg(c)
	if !ok {
		return reply(c, "Usage: /user_accounts <telegram_id>")
	}

	u, err := b.users.Get(ctx, id)
	if err != nil {
		return err
	}
	eligible, err := b.accounts.ListEligible(ctx, id)
	if err != nil {
		return err
	}
	paid, err := b.accounts.CountBySubmitter(ctx, id, domain.StatusPaid)
	if err != nil {
		return err
	}
	rejected, err := b.accounts.CountBySubmitter(ctx, id, domain.StatusRejected)
	if err != nil {
		return err
	}

	list := "-"
	if len(eligible) > 0 {
		list = strings.Join(eligible, ", ")
	}
	return reply(c, fmt.Sprintf(
		"👤 %d\n✅ Verified: %d (balance %.2f$)\n❌ Unverified: %d\n📱 Eligible: %s\n💵 Paid: %d\n🗑 Rejected: %d",
		id, u.VerifiedCount, u.Balance, u.UnverifiedCount, list, paid, rejected,
	))
}

func (b *Bot) handleMarkPaid(c tele.Context) error {
	ctx := buildCtx(c)
	id, ok := parseSubmitterArg(c)
	if !ok {
		return reply(c, "Usage: /mark_paid <telegram_id>")
	}

	settled, err := b.withdraw.MarkPaid(ctx, id)
	if err != nil {
		var rej *domain.RejectedError
		if errors.As(err, &rej) && rej.Reason == domain.RejectNothingEligible {
			return reply(c, fmt.Sprintf("Nothing to settle for %d.", id))
		}
		return err
	}

	if b.notifier != nil {
		lang := b.lang(ctx, id)
		_ = b.notifier.NotifySubmitter(ctx, id, texts.Getf(lang, texts.PaidNotice, settled))
	}
	return reply(c, fmt.Sprintf("✅ Settled %d account(s) for %d.", settled, id))
}

func (b *Bot) handleCompletedToday(c tele.Context) error {
	ctx := buildCtx(c)

	loc := b.intake.Loc
	if loc == nil {
		loc = time.UTC
	}
	local := b.now().In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	n, err := b.accounts.SettledSince(ctx, midnight)
	if err != nil {
		return err
	}
	return reply(c, fmt.Sprintf("💵 Accounts settled today: %d", n))
}
