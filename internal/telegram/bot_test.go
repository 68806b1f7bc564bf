package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/SpeakCoachBot/internal/config"
	"github.com/digkill/SpeakCoachBot/internal/models"
	"github.com/digkill/SpeakCoachBot/internal/service"
)

type fakeAPI struct {
	sent    []tgbotapi.Chattable
	file    tgbotapi.File
	fileErr error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.sent = append(f.sent, cfg)
	return nil, nil
}

func (f *fakeAPI) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	return f.file, f.fileErr
}

func (f *fakeAPI) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return nil
}

func (f *fakeAPI) StopReceivingUpdates() {}

// allText joins every outgoing message and edit for substring assertions.
func (f *fakeAPI) allText() string {
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return strings.Join(out, "\n")
}

type fakeUsers struct {
	users map[int64]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]*models.User)}
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Upsert(_ context.Context, id int64, username string) error {
	if u, ok := f.users[id]; ok {
		if username != "" {
			u.Username = username
		}
		return nil
	}
	f.users[id] = &models.User{ID: id, Username: username}
	return nil
}

func (f *fakeUsers) SetSubscriptionEnd(_ context.Context, id int64, end time.Time) error {
	f.users[id].SubscriptionEnd = &end
	return nil
}

func (f *fakeUsers) ConsumeTrialTask(_ context.Context, id int64, allowance int) (bool, error) {
	u := f.users[id]
	if u == nil || u.TrialTasksUsed >= allowance {
		return false, nil
	}
	u.TrialTasksUsed++
	return true, nil
}

func (f *fakeUsers) ConsumeSingleTask(_ context.Context, id int64) (bool, error) {
	u := f.users[id]
	if u == nil || u.SingleTasksPurchased <= 0 {
		return false, nil
	}
	u.SingleTasksPurchased--
	return true, nil
}

func (f *fakeUsers) AddSingleTasks(_ context.Context, id int64, count int) error {
	f.users[id].SingleTasksPurchased += count
	return nil
}

func (f *fakeUsers) ListActiveSubscribers(_ context.Context) ([]models.Subscriber, error) {
	return nil, nil
}

func (f *fakeUsers) ListIDs(_ context.Context) ([]int64, error) {
	return nil, nil
}

type fakeAdminStore struct {
	admins map[int64]bool
}

func (f *fakeAdminStore) IsAdmin(_ context.Context, id int64) (bool, error) {
	return f.admins[id], nil
}

func (f *fakeAdminStore) List(_ context.Context) ([]int64, error) {
	return nil, nil
}

func (f *fakeAdminStore) Add(_ context.Context, id int64) error {
	f.admins[id] = true
	return nil
}

func (f *fakeAdminStore) Remove(_ context.Context, id int64) error {
	delete(f.admins, id)
	return nil
}

type fakeEngine struct {
	reviewCalls   int
	gotPrompt     string
	gotAudioURL   string
	reviewText    string
	reviewErr     error
	transcript    string
	transcribeErr error
}

func (f *fakeEngine) Review(_ context.Context, _, prompt, audioURL string) (string, error) {
	f.reviewCalls++
	f.gotPrompt = prompt
	f.gotAudioURL = audioURL
	return f.reviewText, f.reviewErr
}

func (f *fakeEngine) Transcribe(_ context.Context, _, _ string) (string, error) {
	return f.transcript, f.transcribeErr
}

type fakeMedia struct {
	uploaded    []byte
	contentType string
	deleted     []string
}

func (f *fakeMedia) Upload(_ context.Context, data []byte, contentType string) (string, string, error) {
	f.uploaded = data
	f.contentType = contentType
	return "voice/test.ogg", "https://cdn.example.com/voice/test.ogg", nil
}

func (f *fakeMedia) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeTasks struct {
	categories       []string
	prompt           string
	task             *models.Task
	categoriesCalled bool
}

func (f *fakeTasks) Categories(_ context.Context) ([]string, error) {
	f.categoriesCalled = true
	return f.categories, nil
}

func (f *fakeTasks) RandomTask(_ context.Context, _ string) (string, *models.Task, error) {
	return f.prompt, f.task, nil
}

func (f *fakeTasks) TaskByID(_ context.Context, _ string) (string, *models.Task, error) {
	return f.prompt, f.task, nil
}

type fakePrices map[models.Tariff]int

func (f fakePrices) Price(t models.Tariff) (int, bool) {
	amount, ok := f[t]
	return amount, ok
}

func (f fakePrices) All() map[models.Tariff]int { return f }

func (f fakePrices) SetPrice(t models.Tariff, amount int) error {
	f[t] = amount
	return nil
}

type fakePrompts struct{}

func (fakePrompts) Template() string {
	return "Задание: {task_text}\nОтвет ученика: {user_text}"
}

type botFixture struct {
	bot    *Bot
	api    *fakeAPI
	users  *fakeUsers
	engine *fakeEngine
	media  *fakeMedia
	tasks  *fakeTasks
}

func newBotFixture(t *testing.T, transcribeMode bool) *botFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := &fakeAPI{}
	users := newFakeUsers()
	admins := service.NewAdminService(&fakeAdminStore{admins: make(map[int64]bool)}, 99)
	engine := &fakeEngine{reviewText: "Хороший ответ, но следите за временами глаголов."}
	media := &fakeMedia{}
	tasks := &fakeTasks{
		categories: []string{"describe_picture"},
		task:       &models.Task{ID: "42", Text: "Опишите картинку", TimeLimit: 60},
	}

	b := &Bot{
		cfg:         config.Config{BotToken: "test-token", AdminCommand: "adminpanel"},
		api:         api,
		log:         log,
		entitlement: service.NewEntitlementService(users, admins, 2, log),
		admins:      admins,
		review:      service.NewReviewService(engine, media, []string{"key-1"}, transcribeMode, log),
		tasks:       tasks,
		prices:      fakePrices{models.TariffWeek: 299, models.TariffMonth: 799, models.TariffSingle: 50},
		prompts:     fakePrompts{},
		state:       NewStateManager(),
		httpClient:  &http.Client{},
		fileHost:    telegramFileHost,
	}
	return &botFixture{bot: b, api: api, users: users, engine: engine, media: media, tasks: tasks}
}

// serveVoiceFile stands in for the Telegram file host.
func serveVoiceFile(t *testing.T, fx *botFixture, body string) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	fx.bot.fileHost = ts.URL
	fx.api.file = tgbotapi.File{FilePath: "voice/file_1.oga"}
}

func voiceMessage(chatID, userID int64, duration int) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		From:  &tgbotapi.User{ID: userID},
		Voice: &tgbotapi.Voice{FileID: "voice-1", Duration: duration},
	}
}

func textMessage(chatID, userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID},
		Text: text,
	}
}

func TestGetTaskIneligibleOffersPurchase(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7, TrialTasksUsed: 2}

	fx.bot.handleGetTask(context.Background(), 7, 5, 7)

	assert.Contains(t, fx.api.allText(), "закончились доступные задания")
	assert.False(t, fx.tasks.categoriesCalled)
	assert.Equal(t, StateIdle, fx.bot.state.Get(7).State)
}

func TestGetTaskEligibleShowsCategories(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7}

	fx.bot.handleGetTask(context.Background(), 7, 5, 7)

	assert.True(t, fx.tasks.categoriesCalled)
	assert.Contains(t, fx.api.allText(), "Выберите тип задания")
	assert.Equal(t, StateIdle, fx.bot.state.Get(7).State)
}

func TestIssueTaskDebitsAndAwaitsVoice(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7}

	fx.bot.handleCategorySelected(context.Background(), 7, 5, 7, "describe_picture")

	session := fx.bot.state.Get(7)
	assert.Equal(t, StateAwaitingVoice, session.State)
	assert.Equal(t, "Опишите картинку", session.TaskText)
	assert.Equal(t, 60, session.TimeLimit)
	assert.Equal(t, 1, fx.users.users[7].TrialTasksUsed)
	assert.Contains(t, fx.api.allText(), "Ваше задание")
}

func TestVoiceWithinLimitReviewedAndSessionReset(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7}
	serveVoiceFile(t, fx, "ogg-data")
	fx.bot.state.Set(7, &Session{
		State:          StateAwaitingVoice,
		TaskText:       "Опишите картинку",
		PromptTemplate: fakePrompts{}.Template(),
		TimeLimit:      60,
	})

	fx.bot.handleVoice(context.Background(), voiceMessage(7, 7, 45))

	require.Equal(t, 1, fx.engine.reviewCalls)
	assert.Contains(t, fx.engine.gotPrompt, "Опишите картинку")
	assert.Equal(t, "https://cdn.example.com/voice/test.ogg", fx.engine.gotAudioURL)
	assert.Equal(t, []byte("ogg-data"), fx.media.uploaded)
	assert.Equal(t, "audio/ogg", fx.media.contentType)
	assert.Equal(t, []string{"voice/test.ogg"}, fx.media.deleted)

	text := fx.api.allText()
	assert.Contains(t, text, "Ваш разбор ответа")
	assert.Contains(t, text, fx.engine.reviewText)

	// Back to rest state with the main menu on screen.
	assert.Equal(t, StateIdle, fx.bot.state.Get(7).State)
	assert.Contains(t, text, "Привет! Я AI-репетитор")
}

func TestVoiceOverLimitKeepsAwaitingVoice(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7, TrialTasksUsed: 1}
	fx.bot.state.Set(7, &Session{
		State:     StateAwaitingVoice,
		TaskText:  "Опишите картинку",
		TimeLimit: 30,
	})

	fx.bot.handleVoice(context.Background(), voiceMessage(7, 7, 45))

	assert.Contains(t, fx.api.allText(), "Запишите ответ короче")
	assert.Zero(t, fx.engine.reviewCalls)

	// The attempt survives for a retry and no extra credit is burned.
	session := fx.bot.state.Get(7)
	assert.Equal(t, StateAwaitingVoice, session.State)
	assert.Equal(t, "Опишите картинку", session.TaskText)
	assert.Equal(t, 1, fx.users.users[7].TrialTasksUsed)
}

func TestVoiceWithoutTaskIsRejected(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.users.users[7] = &models.User{ID: 7}

	fx.bot.handleVoice(context.Background(), voiceMessage(7, 7, 10))

	assert.Contains(t, fx.api.allText(), "Сначала получите задание")
	assert.Zero(t, fx.engine.reviewCalls)
	assert.Equal(t, StateIdle, fx.bot.state.Get(7).State)
}

func TestTextWhileAwaitingVoicePrompted(t *testing.T) {
	fx := newBotFixture(t, false)
	fx.bot.state.Set(7, &Session{State: StateAwaitingVoice, TaskText: "Опишите картинку"})

	fx.bot.handleMessage(context.Background(), textMessage(7, 7, "вот мой ответ"))

	assert.Contains(t, fx.api.allText(), "отправьте ответ голосовым сообщением")
	assert.Equal(t, StateAwaitingVoice, fx.bot.state.Get(7).State)
}

func TestTranscriptionFailureRoutesToMainMenu(t *testing.T) {
	fx := newBotFixture(t, true)
	fx.users.users[7] = &models.User{ID: 7}
	fx.engine.transcribeErr = errors.New("bad audio")
	serveVoiceFile(t, fx, "ogg-data")
	fx.bot.state.Set(7, &Session{
		State:          StateAwaitingVoice,
		TaskText:       "Опишите картинку",
		PromptTemplate: fakePrompts{}.Template(),
	})

	fx.bot.handleVoice(context.Background(), voiceMessage(7, 7, 20))

	// The session is gone, so the advice must go through a fresh task.
	text := fx.api.allText()
	assert.Contains(t, text, "Возьмите задание через главное меню")
	assert.Equal(t, StateIdle, fx.bot.state.Get(7).State)
	assert.Zero(t, fx.engine.reviewCalls)
	assert.Equal(t, []string{"voice/test.ogg"}, fx.media.deleted)
}
