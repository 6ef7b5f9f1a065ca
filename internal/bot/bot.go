package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg         BotAPI
	state      *BotState
	categories pipeline.CategorySource
	locale     string

	listingHandler *ListingHandler
}

// NewBot creates a new Bot instance. The pipeline analyzes photos, items are
// saved to store and categories are read from source for /kategorien.
func NewBot(tg BotAPI, p *pipeline.Pipeline, store pipeline.ItemStore, source pipeline.CategorySource) *Bot {
	bot := &Bot{
		tg:         tg,
		categories: source,
		locale:     p.Locale(),
	}
	bot.state = bot.NewBotState()
	bot.listingHandler = NewListingHandler(tg, p, store)
	return bot
}

// Shutdown stops every session worker.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	session := b.state.getUserSession(update.Message.From.ID)

	msg := SessionMessage{Type: "text", Ctx: ctx, Message: update.Message}
	if len(update.Message.Photo) > 0 {
		msg.Type = "photo"
	}

	log.Info().
		Int64("userId", update.Message.From.ID).
		Str("type", msg.Type).
		Str("text", update.Message.Text).
		Msg("got message")

	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "photo":
		b.listingHandler.HandlePhoto(ctx, session, msg.Message)
	case "text":
		b.handleCommand(ctx, session, msg.Message)
	case "album_timeout":
		b.listingHandler.ProcessAlbumTimeout(msg.Ctx, session, msg.AlbumBuffer)
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, _ := parseCommand(message.Text)
	switch command {
	case "/start":
		session.reset()
		session.reply(MsgStart)
	case "/kategorien":
		b.handleCategoriesCommand(ctx, session)
	default:
		session.reply(MsgUnknownCommand)
	}
}

// handleCategoriesCommand lists the top-level categories.
func (b *Bot) handleCategoriesCommand(ctx context.Context, session *UserSession) {
	if b.categories == nil {
		session.reply(MsgNoCategories)
		return
	}
	nodes, err := b.categories.LoadCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load categories")
		session.reply(MsgCategoriesFailed)
		return
	}

	roots := category.NewTree(nodes).Roots()
	if len(roots) == 0 {
		session.reply(MsgNoCategories)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgCategoriesHeader)
	for _, n := range roots {
		sb.WriteString("• ")
		sb.WriteString(escapeMarkdown(n.Label(b.locale)))
		sb.WriteString("\n")
	}
	session._reply(sb.String())
}
