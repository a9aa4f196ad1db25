// Package texts holds the localized reply strings for the bot. English and
// Hausa are supported; unknown languages fall back to Hausa.
package texts

import "fmt"

// Key identifies a reply message.
type Key string

const (
	Start           Key = "start"
	IntakeClosed    Key = "intake_closed"
	PhoneInvalid    Key = "phone_invalid"
	PhoneDuplicate  Key = "phone_duplicate"
	PhoneCooldown   Key = "phone_cooldown"
	OTPRequest      Key = "otp_request"
	OTPInvalid      Key = "otp_invalid"
	TwoFactorAsk    Key = "two_factor_ask"
	SecretInvalid   Key = "secret_invalid"
	LoginSuccess    Key = "login_success"
	LoginFail       Key = "login_fail"
	Busy            Key = "busy"
	RateLimited     Key = "rate_limited"
	BackoffTooLong  Key = "backoff_too_long"
	AttemptsOver    Key = "attempts_over"
	SessionExpired  Key = "session_expired"
	Cancelled       Key = "cancelled"
	NothingToCancel Key = "nothing_to_cancel"
	Balance         Key = "balance"
	PayoutClosed    Key = "payout_closed"
	NothingEligible Key = "nothing_eligible"
	WithdrawAsk     Key = "withdraw_ask"
	WithdrawDone    Key = "withdraw_done"
	PaidNotice      Key = "paid_notice"
	LanguageAsk     Key = "language_ask"
	LanguageSet     Key = "language_set"
	Unknown         Key = "unknown"
)

var messages = map[string]map[Key]string{
	"en": {
		Start:           "Welcome! Send your Telegram number (e.g. +234810...) to sell your account.\nMake sure 2FA is disabled before sending.",
		IntakeClosed:    "🚫 Account intake is closed for today.\nIt reopens tomorrow at %s.",
		PhoneInvalid:    "❌ That does not look like a phone number. Send it in international format, e.g. +2348100000000.",
		PhoneDuplicate:  "⚠️ This number was already received: %s\n⏳ You can submit it again after one week.",
		PhoneCooldown:   "⏳ This number was accepted recently. Try again after the cooldown ends.",
		OTPRequest:      "✅ OTP sent to %s. Please paste it here.",
		OTPInvalid:      "❌ Wrong code. Try again or /cancel.",
		TwoFactorAsk:    "🔐 This account has 2FA enabled. Send the password here, or /cancel.",
		SecretInvalid:   "❌ Wrong password. Try again or /cancel.",
		LoginSuccess:    "✅ Login successful! Account %s accepted.",
		LoginFail:       "❌ Login failed.",
		Busy:            "⌛ Your previous submission is still being processed. Finish it or /cancel first.",
		RateLimited:     "⏳ Telegram asks us to wait. Try the same code again in %s.",
		BackoffTooLong:  "🚫 Telegram requires too long a wait for this number. Submission cancelled, try again later.",
		AttemptsOver:    "🚫 Too many wrong attempts. Submission cancelled.",
		SessionExpired:  "⌛ Your submission expired due to inactivity. Send /start to begin again.",
		Cancelled:       "✅ Process canceled.",
		NothingToCancel: "Nothing to cancel.",
		Balance:         "🆔 ID: %d\n✅ Verified: %d\n❌ Unverified: %d\n💰 Balance: %.2f$",
		PayoutClosed:    "🚫 Payouts are closed for today. They reopen at %s.",
		NothingEligible: "You have no verified accounts awaiting payment.",
		WithdrawAsk:     "💳 Send your bank account number and account name.\nExample: 9131085651 OPay Bashir Rabiu",
		WithdrawDone:    "✅ Withdrawal request received. Waiting for admin.",
		PaidNotice:      "💵 You have been paid for %d account(s). Thank you!",
		LanguageAsk:     "🌐 Choose your language:",
		LanguageSet:     "✅ Language updated.",
		Unknown:         "Send /start to sell an account, or /withdraw to get paid.",
	},
	"ha": {
		Start:           "Barka da zuwa! Turo lambar Telegram ɗin da kake son siyarwa (misali: +234810...).\n🛡 Tabbatar ka cire 2FA kafin turawa.",
		IntakeClosed:    "🚫 An rufe karɓar Telegram accounts na yau.\nZa a buɗe gobe %s.",
		PhoneInvalid:    "❌ Wannan ba lambar waya ba ce. Turo ta a tsarin ƙasa da ƙasa, misali +2348100000000.",
		PhoneDuplicate:  "⚠️ An riga an karɓi wannan lambar: %s\n⏳ Za ka iya sake turawa bayan mako ɗaya.",
		PhoneCooldown:   "⏳ An karɓi wannan lambar kwanan nan. Sake gwadawa bayan lokacin jira ya ƙare.",
		OTPRequest:      "✅ An tura OTP zuwa %s.\n\n📩 Turo lambar OTP ɗin a nan.",
		OTPInvalid:      "❌ Lambar ba daidai ba ce. Sake gwadawa ko /cancel.",
		TwoFactorAsk:    "🔐 Account ɗin na da 2FA. Turo kalmar sirri a nan, ko /cancel.",
		SecretInvalid:   "❌ Kalmar sirri ba daidai ba ce. Sake gwadawa ko /cancel.",
		LoginSuccess:    "✅ An shiga account ɗin %s cikin nasara.",
		LoginFail:       "❌ Shiga ya gaza.",
		Busy:            "⌛ Ana kan sarrafa turawarka ta baya. Kammala ta ko /cancel tukuna.",
		RateLimited:     "⏳ Telegram na buƙatar jira. Sake turo lambar bayan %s.",
		BackoffTooLong:  "🚫 Telegram na buƙatar jira mai tsawo ga wannan lambar. An soke turawa, sake gwadawa daga baya.",
		AttemptsOver:    "🚫 An yi kuskure sau da yawa. An soke turawa.",
		SessionExpired:  "⌛ Turawarka ta ƙare saboda rashin amsa. Turo /start don sake farawa.",
		Cancelled:       "✅ An soke aikin.",
		NothingToCancel: "Babu abin sokewa.",
		Balance:         "🆔 ID: %d\n✅ Tabbatattu: %d\n❌ Mara tabbaci: %d\n💰 Kuɗi: %.2f$",
		PayoutClosed:    "🚫 An rufe biyan kuɗi na yau. Za a buɗe %s.",
		NothingEligible: "Ba ka da tabbatattun accounts da ke jiran biya.",
		WithdrawAsk:     "💳 Turo lambar asusun bankinka da sunan mai asusun.\nMisali: 9131085651 OPay Bashir Rabiu",
		WithdrawDone:    "✅ Bukatar cire kuɗi ta karɓu. Ana jiran admin.",
		PaidNotice:      "💵 An biya ka don account %d. Na gode!",
		LanguageAsk:     "🌐 Zaɓi harshenka / Choose your language:",
		LanguageSet:     "🌍 Harshen ka ya canza / Language set.",
		Unknown:         "Turo /start don saida account, ko /withdraw don karɓar kuɗi.",
	},
}

// DefaultLanguage is used when a user has no stored preference.
const DefaultLanguage = "ha"

// Supported reports whether lang has a message table.
func Supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// Get returns the message for lang and key, falling back to the default
// language and then to the key itself.
func Get(lang string, key Key) string {
	if table, ok := messages[lang]; ok {
		if msg, ok := table[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[DefaultLanguage][key]; ok {
		return msg
	}
	return string(key)
}

// Getf formats the message for lang and key with fmt.Sprintf semantics.
func Getf(lang string, key Key, args ...any) string {
	return fmt.Sprintf(Get(lang, key), args...)
}
