// Command accbot runs the account acquisition bot: it migrates the database,
// wires the stores and the login agent client, and serves Telegram updates
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/kasuwa/accbot/core/config"
	"github.com/kasuwa/accbot/core/database"
	"github.com/kasuwa/accbot/core/logger"
	tg "github.com/kasuwa/accbot/core/telegram"
	"github.com/kasuwa/accbot/core/telegram/state"
	"github.com/kasuwa/accbot/internal/bot"
	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/notify"
	"github.com/kasuwa/accbot/internal/provider"
	"github.com/kasuwa/accbot/internal/session"
	"github.com/kasuwa/accbot/internal/store"
	"github.com/kasuwa/accbot/internal/texts"
	"github.com/kasuwa/accbot/internal/withdraw"
	"log/slog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := coreconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Shutdown()

	if err := database.RunMigrations(cfg.Database, "migrations"); err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	intake, err := gate.Parse(cfg.Windows.Intake.Start, cfg.Windows.Intake.End, cfg.Windows.Intake.Timezone)
	if err != nil {
		return fmt.Errorf("intake window: %w", err)
	}
	payout, err := gate.Parse(cfg.Windows.Payout.Start, cfg.Windows.Payout.End, cfg.Windows.Payout.Timezone)
	if err != nil {
		return fmt.Errorf("payout window: %w", err)
	}

	accounts := store.NewPostgresAccounts(db, cfg.CooldownPeriod())
	users := store.NewPostgresUsers(db, cfg.DefaultLanguage)
	withdrawals := store.NewPostgresWithdrawals(db)

	var ledger store.Ledger
	if cfg.Cooldown.Backend == coreconfig.CooldownBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		ledger = store.NewRedisLedger(rdb, cfg.CooldownPeriod())
	} else {
		ledger = store.NewPostgresLedger(db, cfg.CooldownPeriod())
	}

	agent := provider.NewAgentClient(provider.AgentConfig{
		BaseURL:   cfg.Provider.AgentURL,
		AuthToken: cfg.Provider.AuthToken,
		Timeout:   time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})

	arena := session.NewArena(session.Deps{
		Provider:   agent,
		Accounts:   accounts,
		Ledger:     ledger,
		Intake:     intake,
		MaxBackoff: cfg.MaxBackoff(),
	})
	sweeper := session.NewSweeper(arena, accounts, cfg.IdleTimeout(), cfg.SweepInterval(), nil)

	fsm := state.NewMemoryManager()
	withdrawSvc := withdraw.New(accounts, withdrawals, nil, payout, nil)

	b := bot.New(bot.Options{
		Config:   cfg,
		FSM:      fsm,
		Arena:    arena,
		Users:    users,
		Accounts: accounts,
		Withdraw: withdrawSvc,
		Intake:   intake,
	})
	reg := b.Registry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tg.RunTelegram(ctx, tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Routes:      b.Routes(reg),
		Middlewares: tg.DefaultMiddlewares(cfg, nil),
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			notifier := notify.NewBot(rt.Bot, rt.Dispatcher, cfg.Telegram.ChannelID)
			b.SetNotifier(notifier)

			sweeper.OnExpire = func(submitterID int64) {
				fsm.Clear(submitterID)
				bg := logger.Background()
				lang := texts.DefaultLanguage
				if u, err := users.Get(bg, submitterID); err == nil && texts.Supported(u.Language) {
					lang = u.Language
				}
				if err := notifier.NotifySubmitter(bg, submitterID, texts.Get(lang, texts.SessionExpired)); err != nil {
					logger.SWEEP.Warn("expire notify failed",
						slog.String("event", "sweep.notify"),
						slog.Int64("user_id", submitterID),
						slog.String("err", err.Error()),
					)
				}
			}
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			sweeper.Stop()
			return nil
		},
	})
	return err
}
