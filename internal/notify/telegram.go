package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	logx "caresentry/pkg/logx"
)

// Telegram delivers reminders through the Telegram Bot API.
//
// Send is safe for concurrent use. Start/Stop only control the optional
// /start greeter; sending works without them.
type Telegram struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 8 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		cfg: cfg,
		log: log,
		bot: b,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

// Send delivers text to the Telegram chat named by channelID.
// The call is rate-limited and bounded by the configured send timeout.
func (t *Telegram) Send(ctx context.Context, channelID, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
	if err != nil {
		return ErrInvalidChannel
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
	defer cancel()

	if err := t.limiter.Wait(ctx); err != nil {
		return ErrTimeout
	}

	// telebot's Send has no context plumbing; run it on the side so a hung
	// HTTP call cannot stall the fire handler past the timeout.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: chatID}, text)
		done <- err
	}()

	select {
	case err := <-done:
		return mapSendErr(err)
	case <-ctx.Done():
		return ErrTimeout
	}
}

func mapSendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrChatNotFound) || errors.Is(err, tele.ErrBlockedByUser) {
		return ErrInvalidChannel
	}
	// Any other 4xx from the Bot API means the chat can never receive from us.
	var te *tele.Error
	if errors.As(err, &te) && te.Code >= 400 && te.Code < 500 {
		return ErrInvalidChannel
	}
	return errors.Join(ErrUnreachable, err)
}

// Start begins the /start greeter loop when polling is enabled.
// It is a no-op otherwise, and idempotent either way.
func (t *Telegram) Start(ctx context.Context) error {
	if !t.cfg.Polling {
		return nil
	}
	t.runMu.Lock()
	if t.running {
		t.runMu.Unlock()
		return nil
	}
	t.running = true
	rctx, cancel := context.WithCancel(ctx)
	t.runCancel = cancel
	t.runWG.Add(1)
	t.runMu.Unlock()

	t.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("👋 Hey! Your reminder bot is active.")
	})

	go func() {
		defer t.runWG.Done()
		go func() {
			<-rctx.Done()
			t.bot.Stop()
		}()
		t.log.Info("polling started")
		t.bot.Start() // blocks until Stop() called
	}()
	return nil
}

// Stop halts the greeter loop. Never blocks past ctx or a short grace window.
func (t *Telegram) Stop(ctx context.Context) error {
	t.runMu.Lock()
	cancel := t.runCancel
	t.runCancel = nil
	wasRunning := t.running
	t.running = false
	t.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		t.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		t.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}
