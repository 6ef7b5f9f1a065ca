package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/raine/marktplatz-bot/internal/llm"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/raine/marktplatz-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type botApiMock struct {
	mock.Mock
	fileBaseURL string
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	return m.fileBaseURL + "/" + fileID, nil
}

// visionStub answers with a canned analysis per image body
type visionStub struct {
	analyses map[string]*analysis.AnalysisResult
}

func (v *visionStub) AnalyzeImage(ctx context.Context, data []byte, mimeType string) (*llm.Result, error) {
	a, ok := v.analyses[string(data)]
	if !ok {
		return nil, errors.New("model unavailable")
	}
	clone := a.Clone()
	return &llm.Result{Analysis: &clone}, nil
}

type categoryStub struct {
	nodes []category.Node
	err   error
}

func (c *categoryStub) LoadCategories(ctx context.Context) ([]category.Node, error) {
	return c.nodes, c.err
}

type itemStoreStub struct {
	mu    sync.Mutex
	items []*storage.StoredItem
}

func (s *itemStoreStub) SaveItem(item *storage.StoredItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = fmt.Sprintf("item-%d", len(s.items)+1)
	s.items = append(s.items, item)
	return item.ID, nil
}

func (s *itemStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type testBot struct {
	userId int64
	tg     *botApiMock
	bot    *Bot
	store  *itemStoreStub

	mu   sync.Mutex
	sent []string
}

func (tb *testBot) texts() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return append([]string(nil), tb.sent...)
}

func price(v float64) *float64 {
	return &v
}

func testAnalyses() map[string]*analysis.AnalysisResult {
	return map[string]*analysis.AnalysisResult{
		"auto": {
			Title:       "BMW 320d Touring",
			Description: "Gepflegter Kombi",
			Price:       price(12000),
			Category:    "Fahrzeuge",
			Subcategory: "Autos",
		},
		"papier": {
			Title:       "Fahrzeugbrief",
			Description: "Erstzulassung: 03/2015\nTÜV bis 2026",
			Price:       price(0),
		},
		"stuhl": {
			Title:       "Holzstuhl",
			Description: "Massiv",
			Price:       price(15),
		},
	}
}

func testCategories() []category.Node {
	return []category.Node{
		{ID: "1", Level: 1, Slug: "fahrzeuge", Translations: map[string]category.Translation{"de": {Name: "Fahrzeuge"}}},
		{ID: "2", Level: 1, Slug: "haushalt", Translations: map[string]category.Translation{"de": {Name: "Haus_halt"}}},
		{ID: "11", Level: 2, ParentID: "1", Slug: "autos-pkw", Translations: map[string]category.Translation{"de": {Name: "PKW"}}},
	}
}

// setup builds a bot whose Telegram files are served by a test server. Each
// file's body is its file id, except "missing" which returns 404.
func setup(t *testing.T, source pipeline.CategorySource) *testBot {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fileID := strings.TrimPrefix(r.URL.Path, "/")
		if fileID == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(fileID))
	}))
	t.Cleanup(ts.Close)

	tb := &testBot{userId: 1, tg: &botApiMock{fileBaseURL: ts.URL}, store: &itemStoreStub{}}
	tb.tg.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		msg := args.Get(0).(tgbotapi.MessageConfig)
		tb.mu.Lock()
		tb.sent = append(tb.sent, msg.Text)
		tb.mu.Unlock()
	}).Return(tgbotapi.Message{}, nil)
	tb.tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()

	p := pipeline.New(&visionStub{analyses: testAnalyses()}, source, pipeline.Options{
		CategoryTables: category.Tables{Mappings: map[int]category.Mapping{2: {"autos": {"autos", "pkw"}}}},
		Locale:         "de",
	})
	tb.bot = NewBot(tb.tg, p, tb.store, source)
	tb.bot.listingHandler.albumTimeout = 10 * time.Millisecond
	t.Cleanup(tb.bot.Shutdown)
	return tb
}

func makeUpdateWithMessageText(userId int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userId},
			Text: text,
		},
	}
}

func makeUpdateWithPhoto(userId int64, fileID, mediaGroupID string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:         &tgbotapi.User{ID: userId},
			MediaGroupID: mediaGroupID,
			Photo: []tgbotapi.PhotoSize{
				{FileID: fileID + "-small", Width: 90, Height: 90},
				{FileID: fileID, Width: 1280, Height: 960},
			},
		},
	}
}

func TestHandleUpdate_Start(t *testing.T) {
	tb := setup(t, nil)

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(tb.userId, "/start"))

	assert.Equal(t, []string{formatReplyText(MsgStart)}, tb.texts())
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	tb := setup(t, nil)

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(tb.userId, "hallo"))

	assert.Equal(t, []string{MsgUnknownCommand}, tb.texts())
}

func TestHandleUpdate_IgnoresUpdatesWithoutMessage(t *testing.T) {
	tb := setup(t, nil)

	tb.bot.handleUpdateSync(context.Background(), tgbotapi.Update{})

	assert.Empty(t, tb.texts())
	tb.tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestCategoriesCommand(t *testing.T) {
	tb := setup(t, &categoryStub{nodes: testCategories()})

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(tb.userId, "/kategorien@marktplatz_bot"))

	assert.Equal(t, []string{MsgCategoriesHeader + "• Fahrzeuge\n• Haus\\_halt\n"}, tb.texts())
}

func TestCategoriesCommand_SourceFails(t *testing.T) {
	tb := setup(t, &categoryStub{err: errors.New("connection refused")})

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(tb.userId, "/kategorien"))

	assert.Equal(t, []string{MsgCategoriesFailed}, tb.texts())
}

func TestCategoriesCommand_Empty(t *testing.T) {
	tb := setup(t, &categoryStub{})

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(tb.userId, "/kategorien"))

	assert.Equal(t, []string{MsgNoCategories}, tb.texts())
}

func TestSinglePhoto_SavesItem(t *testing.T) {
	tb := setup(t, &categoryStub{nodes: testCategories()})

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(tb.userId, "auto", ""))

	require.Equal(t, 1, tb.store.count())
	item := tb.store.items[0]
	assert.Equal(t, "11", item.CategoryID)
	assert.Equal(t, "resolved", item.CategoryStatus)
	assert.Equal(t, 1, item.ImageCount)

	assert.Equal(t, []string{
		MsgAnalyzingOne,
		formatReplyText(MsgItemReady, "BMW 320d Touring", "Gepflegter Kombi", "12.000 €", "Fahrzeuge > PKW"),
	}, tb.texts())

	session := tb.bot.state.getUserSession(tb.userId)
	assert.Equal(t, "item-1", session.LastItemID())
}

func TestSinglePhoto_UnresolvedCategory(t *testing.T) {
	tb := setup(t, &categoryStub{nodes: testCategories()})

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(tb.userId, "stuhl", ""))

	require.Equal(t, 1, tb.store.count())
	assert.Equal(t, "unresolved", tb.store.items[0].CategoryStatus)
	assert.Equal(t, []string{
		MsgAnalyzingOne,
		formatReplyText(MsgItemReady, "Holzstuhl", "Massiv", "15 €", MsgCategoryNotChosen),
		MsgChooseCategory,
	}, tb.texts())
}

func TestSinglePhoto_AnalysisFails(t *testing.T) {
	tb := setup(t, nil)

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(tb.userId, "unbekannt", ""))

	assert.Equal(t, 0, tb.store.count())
	assert.Equal(t, []string{MsgAnalyzingOne, MsgAnalysisFailed}, tb.texts())
}

func TestSinglePhoto_DownloadFails(t *testing.T) {
	tb := setup(t, nil)

	tb.bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(tb.userId, "missing", ""))

	assert.Equal(t, 0, tb.store.count())
	assert.Equal(t, []string{MsgAnalyzingOne, MsgDownloadFailed}, tb.texts())
}

func TestAlbum_FusesPhotosIntoOneItem(t *testing.T) {
	tb := setup(t, &categoryStub{nodes: testCategories()})
	ctx := context.Background()

	for _, fileID := range []string{"papier", "auto", "missing"} {
		tb.bot.handleUpdateSync(ctx, makeUpdateWithPhoto(tb.userId, fileID, "album-1"))
	}

	require.Eventually(t, func() bool { return tb.store.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	// The album is processed on the session worker, wait for its replies
	tb.bot.state.getUserSession(tb.userId).SendSync(SessionMessage{Type: "noop", Ctx: ctx})

	item := tb.store.items[0]
	assert.Equal(t, "BMW 320d Touring", item.Title)
	assert.Equal(t, 3, item.ImageCount)
	assert.Equal(t, 1, item.FailedImages)
	assert.Contains(t, item.Description, "- Erstzulassung: 03/2015")

	texts := tb.texts()
	require.Len(t, texts, 4)
	assert.Equal(t, formatReplyText(MsgAnalyzingMany, 3), texts[0])
	assert.True(t, strings.HasPrefix(texts[1], "*BMW 320d Touring*"))
	assert.Equal(t, formatReplyText(MsgSomePhotosFailed, 1, 3), texts[2])
	assert.Equal(t, formatReplyText(MsgDocumentFactsApplied, "1 Dokument"), texts[3])
}

func TestAlbum_NewAlbumFlushesPrevious(t *testing.T) {
	tb := setup(t, &categoryStub{nodes: testCategories()})
	tb.bot.listingHandler.albumTimeout = time.Hour
	ctx := context.Background()

	tb.bot.handleUpdateSync(ctx, makeUpdateWithPhoto(tb.userId, "stuhl", "album-1"))
	assert.Equal(t, 0, tb.store.count())

	tb.bot.handleUpdateSync(ctx, makeUpdateWithPhoto(tb.userId, "auto", "album-2"))
	assert.Equal(t, 1, tb.store.count())
	assert.Equal(t, "Holzstuhl", tb.store.items[0].Title)

	// A single photo flushes the pending album before being processed itself
	tb.bot.handleUpdateSync(ctx, makeUpdateWithPhoto(tb.userId, "stuhl", ""))
	require.Equal(t, 3, tb.store.count())
	assert.Equal(t, "BMW 320d Touring", tb.store.items[1].Title)
	assert.Equal(t, "Holzstuhl", tb.store.items[2].Title)
}

func TestAlbum_LimitsPhotoCount(t *testing.T) {
	tb := setup(t, nil)
	tb.bot.listingHandler.albumTimeout = time.Hour
	ctx := context.Background()

	for i := 0; i < maxAlbumPhotos+2; i++ {
		tb.bot.handleUpdateSync(ctx, makeUpdateWithPhoto(tb.userId, "stuhl", "album-1"))
	}

	// handleUpdateSync returned, so the worker is idle
	session := tb.bot.state.getUserSession(tb.userId)
	require.NotNil(t, session.albumBuffer)
	assert.Len(t, session.albumBuffer.Photos, maxAlbumPhotos)
}

func TestRegisterCommands(t *testing.T) {
	tg := new(botApiMock)
	tg.On("Request", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		cfg, ok := c.(tgbotapi.SetMyCommandsConfig)
		return ok && len(cfg.Commands) == len(botCommands)
	})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

	RegisterCommands(tg)
	tg.AssertExpectations(t)
}
