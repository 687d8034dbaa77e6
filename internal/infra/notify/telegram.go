package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/milk-pool/internal/domain/pool"
)

// Telegram sends one-way alerts to the admin chat. A nil *Telegram is a
// no-op, so callers can wire it unconditionally.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// New returns nil (disabled) when the token is empty.
func New(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) PoolArchived(b *pool.Book) {
	t.send(fmt.Sprintf(
		"Pool book #%d closed: %s\nOpening %.1f L, used %.1f L, closing %.1f L (fat %.2f%%, SNF %.2f%%).",
		b.ID, b.PoolName, b.OpeningLiters, b.TotalUsedLiters, b.ClosingLiters, b.ClosingAvgFat, b.ClosingAvgSnf))
}

func (t *Telegram) LowMilk(p *pool.Pool, threshold float64) {
	t.send(fmt.Sprintf(
		"Low milk: %.1f L remaining in %s (threshold %.0f L).",
		p.RemainingMilkLiters, p.Name, threshold))
}

func (t *Telegram) send(text string) {
	if t == nil {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.log.Error("telegram notify failed", "err", err)
	}
}
