// Package bot provides the optional Telegram admin console.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"maze-rewards/internal/config"
	"maze-rewards/internal/model"
	"maze-rewards/internal/service"
)

const (
	commandTimeout    = 15 * time.Second
	closeMonthTimeout = 10 * time.Minute
	searchLimit       = 10
	topLimit          = 10
)

// AdminService is what the console needs from the service layer.
type AdminService interface {
	Stats(ctx context.Context) (*model.Stats, error)
	SearchAccounts(ctx context.Context, query string, limit, offset int) ([]*model.Account, int, error)
	Top(ctx context.Context, limit int) ([]*model.Account, error)
	Earners(ctx context.Context, period string, limit int) ([]model.EarnerRank, error)
	CloseMonth(ctx context.Context, month string) (*service.CloseSummary, error)
}

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot   *tele.Bot
	cfg   *config.Config
	admin AdminService
}

// New creates the console. It fails if no bot token is configured.
func New(cfg *config.Config, admin AdminService) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				ev = ev.Int64("user_id", c.Sender().ID)
			}
			ev.Msg("Bot handler failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{bot: teleBot, cfg: cfg, admin: admin}
	b.register(teleBot)
	return b, nil
}

// register installs middleware and handlers on tb.
func (b *Bot) register(tb *tele.Bot) {
	tb.Use(RecoveryMiddleware())
	tb.Use(LoggingMiddleware())
	tb.Use(AdminMiddleware(b.cfg))

	tb.Handle("/start", b.handleHelp)
	tb.Handle("/help", b.handleHelp)
	tb.Handle("/stats", b.handleStats)
	tb.Handle("/user", b.handleUser)
	tb.Handle("/top", b.handleTop)
	tb.Handle("/earners", b.handleEarners)
	tb.Handle("/close_month", b.handleCloseMonth)
}

const helpText = `Maze rewards admin console

/stats - accounts, coins in circulation, online, claims today
/user <query> - fuzzy search by username or uid
/top - richest accounts
/earners [YYYY-MM | YYYY-MM-DD] - top earners, today by default
/close_month [YYYY-MM] - snapshot balances and reset coins`

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (b *Bot) handleStats(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	stats, err := b.admin.Stats(ctx)
	if err != nil {
		return b.fail(c, "stats", err)
	}
	return c.Send(FormatStats(stats))
}

func (b *Bot) handleUser(c tele.Context) error {
	query := strings.TrimSpace(c.Message().Payload)
	if query == "" {
		return c.Send("Usage: /user <query>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	accounts, total, err := b.admin.SearchAccounts(ctx, query, searchLimit, 0)
	if err != nil {
		return b.fail(c, "user search", err)
	}
	return c.Send(FormatSearch(query, accounts, total))
}

func (b *Bot) handleTop(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	accounts, err := b.admin.Top(ctx, topLimit)
	if err != nil {
		return b.fail(c, "top", err)
	}
	return c.Send(FormatTop(accounts))
}

func (b *Bot) handleEarners(c tele.Context) error {
	period := strings.TrimSpace(c.Message().Payload)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ranks, err := b.admin.Earners(ctx, period, topLimit)
	if err != nil {
		return b.fail(c, "earners", err)
	}
	return c.Send(FormatEarners(period, ranks))
}

func (b *Bot) handleCloseMonth(c tele.Context) error {
	month := strings.TrimSpace(c.Message().Payload)
	if month != "" && !service.ValidMonth(month) {
		return c.Send("Usage: /close_month [YYYY-MM]")
	}

	log.Info().
		Int64("user_id", c.Sender().ID).
		Str("month", month).
		Msg("Month close requested from console")

	ctx, cancel := context.WithTimeout(context.Background(), closeMonthTimeout)
	defer cancel()

	summary, err := b.admin.CloseMonth(ctx, month)
	if err != nil {
		return b.fail(c, "close month", err)
	}
	return c.Send(FormatCloseSummary(summary))
}

// fail reports err to the admin and hands it to OnError.
func (b *Bot) fail(c tele.Context, what string, err error) error {
	_ = c.Send(fmt.Sprintf("%s failed: %v", what, err))
	return fmt.Errorf("%s: %w", what, err)
}

// Start starts polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting admin console...")
	b.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping admin console...")
	b.bot.Stop()
}
