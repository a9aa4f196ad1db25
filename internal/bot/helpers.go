package bot

import (
	"context"

	tghelpers "github.com/kasuwa/accbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func buildCtx(c tele.Context) context.Context {
	return tghelpers.BuildContext(c)
}

func reply(c tele.Context, text string) error {
	return tghelpers.SendText(c, text)
}

func replyMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

// attempts reads the per-conversation wrong-attempt counter.
func (b *Bot) attempts(userID int64) int {
	v, ok := b.fsm.GetTemp(userID, tempAttempts)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

func (b *Bot) bumpAttempts(userID int64) int {
	n := b.attempts(userID) + 1
	b.fsm.SetTemp(userID, tempAttempts, n)
	return n
}
