package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// albumBufferTimeout is how long to wait for more photos in an album
	albumBufferTimeout = 1500 * time.Millisecond
	// maxAlbumPhotos is the maximum number of photos per item
	maxAlbumPhotos = 10
	// maxParallelDownloads bounds concurrent Telegram file downloads
	maxParallelDownloads = 4
)

// ListingHandler turns the photos a user sends into a saved listing draft.
type ListingHandler struct {
	tg           BotAPI
	pipeline     *pipeline.Pipeline
	store        pipeline.ItemStore
	downloader   *ImageDownloader
	albumTimeout time.Duration
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(tg BotAPI, p *pipeline.Pipeline, store pipeline.ItemStore) *ListingHandler {
	return &ListingHandler{
		tg:           tg,
		pipeline:     p,
		store:        store,
		downloader:   NewImageDownloader(),
		albumTimeout: albumBufferTimeout,
	}
}

// HandlePhoto processes an incoming photo message.
// Called from session worker - no locking needed.
func (h *ListingHandler) HandlePhoto(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	// The last size is the largest
	largestPhoto := message.Photo[len(message.Photo)-1]
	photo := AlbumPhoto{
		FileID: largestPhoto.FileID,
		Width:  largestPhoto.Width,
		Height: largestPhoto.Height,
	}

	if message.MediaGroupID != "" {
		h.bufferAlbumPhoto(ctx, session, photo, message.MediaGroupID)
		return
	}

	// A single photo flushes any pending album first
	if session.albumBuffer != nil {
		if session.albumBuffer.Timer != nil {
			session.albumBuffer.Timer.Stop()
		}
		h.ProcessAlbumTimeout(ctx, session, session.albumBuffer)
	}

	h.processPhotoBatch(ctx, session, []AlbumPhoto{photo})
}

// bufferAlbumPhoto adds a photo to the album buffer and schedules processing.
// Called from session worker - no locking needed for session state.
func (h *ListingHandler) bufferAlbumPhoto(ctx context.Context, session *UserSession, photo AlbumPhoto, mediaGroupID string) {
	if session.albumBuffer == nil || session.albumBuffer.MediaGroupID != mediaGroupID {
		// A different album arrived, flush the previous one first
		if session.albumBuffer != nil && len(session.albumBuffer.Photos) > 0 {
			if session.albumBuffer.Timer != nil {
				session.albumBuffer.Timer.Stop()
			}
			h.ProcessAlbumTimeout(ctx, session, session.albumBuffer)
		}
		session.albumBuffer = &AlbumBuffer{
			MediaGroupID:  mediaGroupID,
			Photos:        []AlbumPhoto{},
			FirstReceived: time.Now(),
		}
	}

	if len(session.albumBuffer.Photos) < maxAlbumPhotos {
		session.albumBuffer.Photos = append(session.albumBuffer.Photos, photo)
	}

	if session.albumBuffer.Timer != nil {
		session.albumBuffer.Timer.Stop()
	}

	albumBuffer := session.albumBuffer
	session.albumBuffer.Timer = time.AfterFunc(h.albumTimeout, func() {
		// The request context may be cancelled by now
		session.Send(SessionMessage{
			Type:        "album_timeout",
			Ctx:         context.Background(),
			AlbumBuffer: albumBuffer,
		})
	})
}

// ProcessAlbumTimeout handles the album timeout message from the worker channel.
// Called from session worker - no locking needed.
func (h *ListingHandler) ProcessAlbumTimeout(ctx context.Context, session *UserSession, albumBuffer *AlbumBuffer) {
	// Ignore stale buffers that were replaced or already flushed
	if session.albumBuffer != albumBuffer {
		return
	}

	photos := albumBuffer.Photos
	session.albumBuffer = nil

	if len(photos) == 0 {
		return
	}

	log.Info().
		Int64("userId", session.userId).
		Int("photos", len(photos)).
		Dur("buffered", time.Since(albumBuffer.FirstReceived)).
		Msg("processing album")

	h.processPhotoBatch(ctx, session, photos)
}

// processPhotoBatch analyzes one item's photos and saves the resulting draft.
// Called from session worker - no locking needed.
func (h *ListingHandler) processPhotoBatch(ctx context.Context, session *UserSession, photos []AlbumPhoto) {
	if len(photos) == 0 {
		return
	}

	if len(photos) > 1 {
		session.reply(MsgAnalyzingMany, len(photos))
	} else {
		session.reply(MsgAnalyzingOne)
	}

	typingCtx, cancelTyping := context.WithCancel(ctx)
	defer cancelTyping()
	go session.startTypingLoop(typingCtx)

	images, fetched := h.downloadPhotos(ctx, photos)
	if fetched == 0 {
		session.reply(MsgDownloadFailed)
		return
	}

	res, err := h.pipeline.Run(ctx, images)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllAnalysesFailed) {
			log.Warn().Err(err).Int64("userId", session.userId).Msg("no photo could be analyzed")
			session.reply(MsgAnalysisFailed)
			return
		}
		session.replyWithError(err)
		return
	}

	item, err := pipeline.Persist(h.store, res)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to save item")
		session.reply(MsgSaveFailed, escapeMarkdown(err.Error()))
		return
	}
	session.lastItemID = item.ID

	log.Info().
		Int64("userId", session.userId).
		Str("itemId", item.ID).
		Str("categoryStatus", item.CategoryStatus).
		Msg("item saved")

	cancelTyping()
	h.replyWithSummary(session, res)
}

// downloadPhotos fetches the photos in parallel. Photos that fail keep their
// slot with Err set. It also returns how many photos were fetched.
func (h *ListingHandler) downloadPhotos(ctx context.Context, photos []AlbumPhoto) ([]pipeline.Image, int) {
	images := make([]pipeline.Image, len(photos))

	var g errgroup.Group
	g.SetLimit(maxParallelDownloads)
	for i, photo := range photos {
		g.Go(func() error {
			data, mimeType, err := h.downloader.DownloadFromTelegramFileID(ctx, h.tg.GetFileDirectURL, photo.FileID)
			if err != nil {
				log.Warn().Err(err).Str("fileID", photo.FileID).Msg("failed to download photo")
				images[i] = pipeline.Image{Err: err}
				return nil
			}
			images[i] = pipeline.Image{Data: data, MIMEType: mimeType}
			return nil
		})
	}
	_ = g.Wait()

	fetched := 0
	for _, img := range images {
		if img.Err == nil {
			fetched++
		}
	}
	return images, fetched
}

func (h *ListingHandler) replyWithSummary(session *UserSession, res *pipeline.Result) {
	m := res.Merged

	categoryLabel := res.CategoryPath(h.pipeline.Locale())
	if categoryLabel == "" {
		categoryLabel = MsgCategoryNotChosen
	}

	session.reply(MsgItemReady,
		escapeMarkdown(m.Title),
		escapeMarkdown(m.Description),
		formatPrice(m.Price),
		escapeMarkdown(categoryLabel),
	)

	switch res.Resolution.Status {
	case category.StatusUnresolved:
		session.reply(MsgChooseCategory)
	case category.StatusPartial:
		session.reply(MsgChooseSubcategory)
	}

	if len(res.Failures) > 0 {
		session.reply(MsgSomePhotosFailed, len(res.Failures), res.ImageCount)
	}
	if len(m.FactSources) > 0 {
		session.reply(MsgDocumentFactsApplied, pluralize("Dokument", "Dokumenten", len(m.FactSources)))
	}
}
