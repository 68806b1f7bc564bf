package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/SpeakCoachBot/internal/config"
	"github.com/digkill/SpeakCoachBot/internal/models"
	"github.com/digkill/SpeakCoachBot/internal/service"
)

const messageChunkSize = 4000

const telegramFileHost = "https://api.telegram.org"

// telegramAPI is the slice of the Telegram client the handlers go through.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TaskProvider is the content store the bot picks exercises from.
type TaskProvider interface {
	Categories(ctx context.Context) ([]string, error)
	RandomTask(ctx context.Context, category string) (string, *models.Task, error)
	TaskByID(ctx context.Context, id string) (string, *models.Task, error)
}

// PromptTemplates supplies the fallback review prompt.
type PromptTemplates interface {
	Template() string
}

// PriceTable is the tariff price surface the purchase flow renders.
type PriceTable interface {
	Price(tariff models.Tariff) (int, bool)
	All() map[models.Tariff]int
	SetPrice(tariff models.Tariff, amount int) error
}

type Bot struct {
	cfg         config.Config
	api         telegramAPI
	log         *slog.Logger
	entitlement *service.EntitlementService
	admins      *service.AdminService
	payments    *service.PaymentService
	review      *service.ReviewService
	tasks       TaskProvider
	prices      PriceTable
	prompts     PromptTemplates
	state       *StateManager
	httpClient  *http.Client
	fileHost    string
}

func NewBot(
	cfg config.Config,
	api *tgbotapi.BotAPI,
	log *slog.Logger,
	entitlement *service.EntitlementService,
	admins *service.AdminService,
	payments *service.PaymentService,
	review *service.ReviewService,
	tasks TaskProvider,
	prices PriceTable,
	prompts PromptTemplates,
) *Bot {
	return &Bot{
		cfg:         cfg,
		api:         api,
		log:         log,
		entitlement: entitlement,
		admins:      admins,
		payments:    payments,
		review:      review,
		tasks:       tasks,
		prices:      prices,
		prompts:     prompts,
		state:       NewStateManager(),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		fileHost:    telegramFileHost,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Voice != nil {
		b.handleVoice(ctx, msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	switch session.State {
	case StateAwaitingTaskID:
		b.handleTaskIDInput(ctx, msg)
	case StateAwaitingVoice:
		b.sendText(msg.Chat.ID, "Пожалуйста, отправьте ответ голосовым сообщением.")
	case StateAwaitingNewPrice:
		b.handleNewPriceInput(ctx, msg, session)
	case StateAwaitingAdminAdd:
		b.handleAdminAddInput(ctx, msg)
	case StateAwaitingAdminRemove:
		b.handleAdminRemoveInput(ctx, msg)
	default:
		b.sendText(msg.Chat.ID, "Используйте /start, чтобы открыть главное меню.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		userID := msg.From.ID
		if err := b.entitlement.RegisterUser(ctx, userID, msg.From.UserName); err != nil {
			b.log.Error("register user", "err", err)
		}
		b.state.Reset(msg.Chat.ID)
		b.sendMainMenu(ctx, msg.Chat.ID, userID)
	case b.cfg.AdminCommand:
		b.handleAdminLogin(ctx, msg)
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Используйте /start.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	b.ackCallback(cb.ID, "")

	switch {
	case cb.Data == "main_menu":
		b.state.Reset(chatID)
		b.deleteMessage(chatID, cb.Message.MessageID)
		b.sendMainMenu(ctx, chatID, userID)
	case cb.Data == "show_info":
		b.showInfo(ctx, chatID, cb.Message.MessageID, userID)
	case cb.Data == "show_subscribe_options":
		b.showSubscribeOptions(chatID, cb.Message.MessageID)
	case strings.HasPrefix(cb.Data, "buy_"):
		b.handleBuy(ctx, chatID, cb.Message.MessageID, userID, models.Tariff(strings.TrimPrefix(cb.Data, "buy_")))
	case cb.Data == "check_payment":
		b.handleCheckPayment(ctx, chatID, cb.Message.MessageID, userID)
	case cb.Data == "get_task":
		b.handleGetTask(ctx, chatID, cb.Message.MessageID, userID)
	case strings.HasPrefix(cb.Data, "select_task_"):
		b.handleCategorySelected(ctx, chatID, cb.Message.MessageID, userID, strings.TrimPrefix(cb.Data, "select_task_"))
	case cb.Data == "get_task_by_id":
		session := b.state.Get(chatID)
		session.State = StateAwaitingTaskID
		b.state.Set(chatID, session)
		b.editText(chatID, cb.Message.MessageID, "Пришлите ID задания одним сообщением.", nil)
	default:
		b.handleAdminCallback(ctx, cb)
	}
}

// --- task delivery ---

func (b *Bot) handleGetTask(ctx context.Context, chatID int64, messageID int, userID int64) {
	if !b.checkCanGetTask(ctx, chatID, messageID, userID) {
		return
	}
	categories, err := b.tasks.Categories(ctx)
	if err != nil || len(categories) == 0 {
		if err != nil {
			b.log.Error("load categories", "err", err)
		}
		b.editText(chatID, messageID, "Не удалось загрузить типы заданий. Попробуйте позже.", backToMainMenuKeyboard())
		return
	}
	b.editText(chatID, messageID, "Выберите тип задания:", taskCategoryKeyboard(categories))
}

func (b *Bot) handleCategorySelected(ctx context.Context, chatID int64, messageID int, userID int64, category string) {
	b.editText(chatID, messageID, "🔄 Загружаю ваше задание...", nil)
	prompt, task, err := b.tasks.RandomTask(ctx, category)
	if err != nil {
		b.log.Error("fetch task", "category", category, "err", err)
	}
	if task == nil {
		b.editText(chatID, messageID, "Не удалось загрузить задание.", backToMainMenuKeyboard())
		return
	}
	b.issueTask(ctx, chatID, userID, prompt, task)
}

func (b *Bot) handleTaskIDInput(ctx context.Context, msg *tgbotapi.Message) {
	taskID := strings.TrimSpace(msg.Text)
	userID := msg.From.ID
	if !b.checkCanGetTask(ctx, msg.Chat.ID, 0, userID) {
		b.state.Reset(msg.Chat.ID)
		return
	}
	prompt, task, err := b.tasks.TaskByID(ctx, taskID)
	if err != nil {
		b.log.Error("fetch task by id", "id", taskID, "err", err)
	}
	if task == nil {
		b.state.Reset(msg.Chat.ID)
		b.sendTextWithKeyboard(msg.Chat.ID, "Задание с таким ID не найдено.", backToMainMenuKeyboard())
		return
	}
	b.issueTask(ctx, msg.Chat.ID, userID, prompt, task)
}

// checkCanGetTask is the eligibility gate: ineligible users are routed to the
// purchase flow and the session stays idle.
func (b *Bot) checkCanGetTask(ctx context.Context, chatID int64, messageID int, userID int64) bool {
	availability, err := b.entitlement.AvailableTasks(ctx, userID)
	if err != nil {
		b.log.Error("check availability", "user_id", userID, "err", err)
		b.sendText(chatID, "Не удалось проверить доступ. Попробуйте позже.")
		return false
	}
	if availability.Eligible() {
		return true
	}
	text := "У вас закончились доступные задания. Оформите подписку или купите разовое задание:"
	if messageID != 0 {
		b.editText(chatID, messageID, text, subscribeMenuKeyboard(b.prices.All()))
	} else {
		b.sendTextWithKeyboard(chatID, text, subscribeMenuKeyboard(b.prices.All()))
	}
	return false
}

// issueTask debits one credit, stores the attempt context and moves the
// session to awaiting-voice.
func (b *Bot) issueTask(ctx context.Context, chatID int64, userID int64, promptTemplate string, task *models.Task) {
	if err := b.entitlement.DebitTask(ctx, userID); err != nil {
		b.log.Error("debit task", "user_id", userID, "err", err)
		b.sendTextWithKeyboard(chatID, "Не удалось выдать задание. Попробуйте позже.", backToMainMenuKeyboard())
		return
	}
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = b.prompts.Template()
	}

	b.state.Set(chatID, &Session{
		State:          StateAwaitingVoice,
		TaskText:       task.Text,
		PromptTemplate: promptTemplate,
		TimeLimit:      task.TimeLimit,
	})

	b.sendTaskMedia(chatID, task)

	var sb strings.Builder
	sb.WriteString("Ваше задание:\n\n")
	sb.WriteString(task.Text)
	sb.WriteString(fmt.Sprintf("\n\n(ID: %s)", task.ID))
	if task.TimeLimit > 0 {
		sb.WriteString(fmt.Sprintf("\nЛимит ответа: %d сек.", task.TimeLimit))
	}
	sb.WriteString("\n\nЗапишите и отправьте свой ответ в виде голосового сообщения.")
	b.sendText(chatID, sb.String())
}

func (b *Bot) sendTaskMedia(chatID int64, task *models.Task) {
	switch {
	case task.Image1 != "" && task.Image2 != "":
		media := tgbotapi.NewMediaGroup(chatID, []interface{}{
			tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(task.Image1)),
			tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(task.Image2)),
		})
		if _, err := b.api.SendMediaGroup(media); err != nil {
			b.log.Error("send task media group", "err", err)
		}
	case task.Image1 != "":
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(task.Image1))
		if _, err := b.api.Send(photo); err != nil {
			b.log.Error("send task photo", "err", err)
		}
	}
}

// --- voice answers ---

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	session := b.state.Get(msg.Chat.ID)
	if session.State != StateAwaitingVoice {
		b.sendText(msg.Chat.ID, "Сначала получите задание через главное меню.")
		return
	}

	if session.TimeLimit > 0 && msg.Voice.Duration > session.TimeLimit {
		// Rejected; the user stays in awaiting-voice and may resend.
		b.sendText(msg.Chat.ID, fmt.Sprintf(
			"Ваш ответ длится %d сек., а лимит задания — %d сек. Запишите ответ короче и отправьте снова.",
			msg.Voice.Duration, session.TimeLimit))
		return
	}

	b.sendText(msg.Chat.ID, "Ответ принят, анализирую... Это может занять до минуты.")

	// Whatever happens below, the session returns to idle so the user is
	// never stuck.
	defer func() {
		b.state.Reset(msg.Chat.ID)
		b.sendMainMenu(ctx, msg.Chat.ID, msg.From.ID)
	}()

	audio, contentType, err := b.downloadVoice(ctx, msg.Voice.FileID)
	if err != nil {
		b.log.Error("download voice", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось получить голосовое сообщение. Попробуйте снова.")
		return
	}

	reviewText, err := b.review.Review(ctx, session.PromptTemplate, session.TaskText, audio, contentType)
	switch {
	case errors.Is(err, service.ErrTranscription):
		b.sendText(msg.Chat.ID, "Не удалось разобрать аудио. Возьмите задание через главное меню и запишите ответ еще раз.")
		return
	case errors.Is(err, service.ErrOverloaded):
		b.sendText(msg.Chat.ID, "Бот сейчас перегружен. Пожалуйста, попробуйте еще раз через несколько минут.")
		return
	case err != nil:
		b.log.Error("review pipeline", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось получить разбор ответа. Попробуйте позже.")
		return
	}

	b.sendText(msg.Chat.ID, "📝 Ваш разбор ответа:")
	for _, chunk := range splitMessage(reviewText, messageChunkSize) {
		b.sendText(msg.Chat.ID, chunk)
	}
}

func (b *Bot) downloadVoice(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("%s/file/bot%s/%s", b.fileHost, b.cfg.BotToken, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "audio/ogg"
	}
	return body, contentType, nil
}

// --- purchase flow ---

func (b *Bot) showSubscribeOptions(chatID int64, messageID int) {
	b.state.Reset(chatID)
	b.editText(chatID, messageID, "Выберите тариф:", subscribeMenuKeyboard(b.prices.All()))
}

func (b *Bot) handleBuy(ctx context.Context, chatID int64, messageID int, userID int64, tariff models.Tariff) {
	invoice, err := b.payments.CreateIntent(ctx, userID, tariff)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTariff) {
			b.sendText(chatID, "Тариф не найден.")
			return
		}
		b.log.Error("create payment intent", "user_id", userID, "err", err)
		b.sendText(chatID, "Не удалось создать счет. Попробуйте позже.")
		return
	}

	session := b.state.Get(chatID)
	session.State = StateAwaitingPaymentCheck
	session.InvoiceID = invoice.InvoiceID
	b.state.Set(chatID, session)

	text := fmt.Sprintf(
		"Тариф: %s\nСумма: %d RUB\n\nПерейдите по ссылке для оплаты, затем нажмите «Я оплатил(а)».",
		tariffTitle(invoice.Tariff), invoice.Amount)
	b.editText(chatID, messageID, text, paymentKeyboard(invoice.Link))
}

func (b *Bot) handleCheckPayment(ctx context.Context, chatID int64, messageID int, userID int64) {
	session := b.state.Get(chatID)
	if session.State != StateAwaitingPaymentCheck || session.InvoiceID == 0 {
		b.editText(chatID, messageID, "Сессия проверки истекла. Выберите тариф заново:", subscribeMenuKeyboard(b.prices.All()))
		return
	}

	result, err := b.payments.Confirm(ctx, session.InvoiceID)
	if errors.Is(err, service.ErrIntentNotFound) {
		b.state.Reset(chatID)
		b.editText(chatID, messageID, "Счет не найден. Начните покупку заново:", subscribeMenuKeyboard(b.prices.All()))
		return
	}
	if err != nil {
		b.log.Error("confirm payment", "invoice_id", session.InvoiceID, "err", err)
		b.editText(chatID, messageID, "Не удалось проверить оплату. Попробуйте еще раз.", paymentFailedKeyboard())
		return
	}
	if result == nil {
		b.editText(chatID, messageID, "Оплата пока не подтверждена. Если вы уже оплатили, подождите минуту и проверьте снова.", paymentFailedKeyboard())
		return
	}

	b.state.Reset(chatID)
	b.deleteMessage(chatID, messageID)
	if result.Days > 0 {
		b.sendText(chatID, fmt.Sprintf("Оплата получена! Подписка активна на %d дней.", result.Days))
	} else {
		b.sendText(chatID, "Оплата получена! Вам доступно одно дополнительное задание.")
	}
	b.sendMainMenu(ctx, chatID, userID)
}

// --- menus ---

func (b *Bot) sendMainMenu(ctx context.Context, chatID int64, userID int64) {
	status := b.userStatusText(ctx, userID)
	text := "Привет! Я AI-репетитор по устной части экзамена.\n\n" + status
	b.sendTextWithKeyboard(chatID, text, mainMenuKeyboard())
}

func (b *Bot) showInfo(ctx context.Context, chatID int64, messageID int, userID int64) {
	status := b.userStatusText(ctx, userID)
	text := "Бот выдает задания устной части, слушает ваш ответ и присылает разбор от AI-эксперта.\n\n" + status
	b.editText(chatID, messageID, text, infoMenuKeyboard())
}

func (b *Bot) userStatusText(ctx context.Context, userID int64) string {
	isAdmin, err := b.admins.IsAdmin(ctx, userID)
	if err == nil && isAdmin {
		return "Статус: администратор (безлимитный доступ)."
	}
	subscribed, end, err := b.entitlement.HasActiveSubscription(ctx, userID)
	if err == nil && subscribed {
		if end != nil {
			return fmt.Sprintf("Статус: подписка активна до %s.", end.Format("02.01.2006"))
		}
		return "Статус: подписка активна."
	}
	availability, err := b.entitlement.AvailableTasks(ctx, userID)
	if err != nil {
		b.log.Error("availability for status", "user_id", userID, "err", err)
		return "Статус: неизвестен."
	}
	if availability.TrialsLeft > 0 {
		return fmt.Sprintf("Статус: доступно пробных заданий — %d.", availability.TrialsLeft)
	}
	if availability.SingleLeft > 0 {
		return fmt.Sprintf("Статус: доступно купленных заданий — %d.", availability.SingleLeft)
	}
	return "Статус: доступных заданий нет."
}

// --- plumbing ---

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) sendTextWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text with keyboard", "err", err)
	}
}

func (b *Bot) editText(chatID int64, messageID int, text string, keyboard interface{}) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if kb, ok := keyboard.(tgbotapi.InlineKeyboardMarkup); ok {
		edit.ReplyMarkup = &kb
	}
	if _, err := b.api.Send(edit); err != nil {
		// The original message may be gone; fall back to a fresh one.
		if kb, ok := keyboard.(tgbotapi.InlineKeyboardMarkup); ok {
			b.sendTextWithKeyboard(chatID, text, kb)
		} else {
			b.sendText(chatID, text)
		}
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message", "err", err)
	}
}

func (b *Bot) ackCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func tariffTitle(t models.Tariff) string {
	switch t {
	case models.TariffWeek:
		return "Неделя"
	case models.TariffMonth:
		return "Месяц"
	case models.TariffSingle:
		return "1 задание"
	default:
		return string(t)
	}
}

// splitMessage cuts long review text into Telegram-sized chunks, preferring
// newline and space boundaries.
func splitMessage(text string, chunkSize int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}
		cut := strings.LastIndex(text[:chunkSize], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:chunkSize], " ")
		}
		if cut <= 0 {
			// Hard cut; back up so a multi-byte rune is never split.
			cut = chunkSize
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = chunkSize
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n ")
	}
	return chunks
}
