package ingest

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
	"sensorlog/internal/normalize"
)

// FromChannelPost keeps only direct, signed text posts made in a channel:
// replies and forwards are ignored.
func FromChannelPost(post *tgbotapi.Message) (model.ChannelMessage, bool) {
	if post == nil || post.Chat == nil {
		return model.ChannelMessage{}, false
	}
	if post.ReplyToMessage != nil || post.ForwardFromChat != nil {
		return model.ChannelMessage{}, false
	}
	if post.AuthorSignature == "" || post.Text == "" || !post.Chat.IsChannel() {
		return model.ChannelMessage{}, false
	}
	return model.ChannelMessage{
		Text:        post.Text,
		Date:        normalize.FromUnix(int64(post.Date)),
		ChannelID:   post.Chat.ID,
		ChannelName: post.Chat.Title,
		MessageID:   int64(post.MessageID),
		Signature:   post.AuthorSignature,
		Source:      SourceTelegram,
	}, true
}

func StartTelegram(ctx context.Context, cfg *config.Manager, out chan<- model.ChannelMessage, logger *slog.Logger) {
	current := cfg.Get().Ingest.Telegram
	if !current.Enabled {
		if logger != nil {
			logger.Info("telegram ingest disabled")
		}
		return
	}
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if current.APIEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(current.Token, current.APIEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(current.Token)
	}
	if err != nil {
		if logger != nil {
			logger.Error("telegram login failed", "err", err)
		}
		return
	}
	bot.Debug = current.Debug
	if logger != nil {
		logger.Info("telegram ingest enabled", "bot", bot.Self.UserName, "skip_pending", current.SkipPending)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = current.PollTimeout
	u.AllowedUpdates = []string{"channel_post"}
	if current.SkipPending {
		u.Offset = latestOffset(bot, logger)
	}
	updates := bot.GetUpdatesChan(u)
	go func() {
		defer bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				msg, keep := FromChannelPost(upd.ChannelPost)
				if !keep {
					continue
				}
				SendNonBlocking(ctx, out, msg, logger)
			}
		}
	}()
}

// latestOffset returns the offset just past the newest queued update.
func latestOffset(bot *tgbotapi.BotAPI, logger *slog.Logger) int {
	pending, err := bot.GetUpdates(tgbotapi.UpdateConfig{Offset: -1, Limit: 1})
	if err != nil {
		if logger != nil {
			logger.Warn("telegram skip pending failed", "err", err)
		}
		return 0
	}
	if len(pending) == 0 {
		return 0
	}
	return pending[len(pending)-1].UpdateID + 1
}
