// Package bot serves alert images over a Telegram chat bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weatherdiffusers/weatherdiffusers/internal/alert"
	"github.com/weatherdiffusers/weatherdiffusers/internal/detect"
)

// Replies sent by the bot.
const (
	GreetingText  = "Hi! Send /weather <city> to get a weather image."
	UsageText     = "Usage: /weather <city name>"
	FailurePrefix = "Failed to generate weather image: "
)

// DefaultConcurrency bounds how many updates are handled at once.
const DefaultConcurrency = 4

// Sender is the subset of the Telegram client the bot needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Generator produces alerts.
type Generator interface {
	Generate(ctx context.Context, req alert.Request) (*alert.Result, error)
}

// Config holds bot dependencies.
type Config struct {
	Sender      Sender
	Generator   Generator
	Window      detect.Window
	Concurrency int
	Logger      zerolog.Logger
}

// Bot handles chat commands.
type Bot struct {
	sender      Sender
	generator   Generator
	window      detect.Window
	concurrency int
	logger      zerolog.Logger
}

// New creates a bot.
func New(cfg Config) *Bot {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Bot{
		sender:      cfg.Sender,
		generator:   cfg.Generator,
		window:      cfg.Window,
		concurrency: concurrency,
		logger:      cfg.Logger,
	}
}

// Run handles updates until ctx is cancelled or the channel closes, then
// waits for in-flight updates to finish.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				b.HandleUpdate(ctx, update)
				return nil
			})
		}
	}
}

// HandleUpdate dispatches one update. Non-command messages are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	log := b.logger.With().
		Str("request_id", uuid.New().String()).
		Int64("chat_id", msg.Chat.ID).
		Str("command", msg.Command()).
		Logger()

	switch msg.Command() {
	case "start":
		b.reply(log, msg.Chat.ID, GreetingText)
	case "weather":
		b.handleWeather(ctx, log, msg.Chat.ID, msg.CommandArguments())
	default:
		log.Debug().Msg("unknown command ignored")
	}
}

func (b *Bot) handleWeather(ctx context.Context, log zerolog.Logger, chatID int64, args string) {
	city := strings.Join(strings.Fields(args), " ")
	if city == "" {
		b.reply(log, chatID, UsageText)
		return
	}

	if _, err := b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto)); err != nil {
		log.Warn().Err(err).Msg("failed to send chat action")
	}

	res, err := b.generator.Generate(ctx, alert.Request{
		City:   city,
		Window: b.window,
		Image:  alert.ImageAlways,
	})
	if err == nil && res.ImagePath == "" {
		err = errors.New("no image produced")
	}
	if err != nil {
		log.Error().Err(err).Str("city", city).Msg("alert generation failed")
		b.reply(log, chatID, FailurePrefix+err.Error())
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(res.ImagePath))
	photo.Caption = res.Message
	if _, err := b.sender.Send(photo); err != nil {
		log.Error().Err(err).Str("image", res.ImagePath).Msg("failed to send photo")
		b.reply(log, chatID, FailurePrefix+fmt.Sprintf("sending photo: %v", err))
		return
	}

	log.Info().
		Str("city", city).
		Bool("detected", res.Detected).
		Str("source", res.Source).
		Msg("weather image sent")
}

func (b *Bot) reply(log zerolog.Logger, chatID int64, text string) {
	if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Msg("failed to send message")
	}
}
