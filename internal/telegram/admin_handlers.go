package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/SpeakCoachBot/internal/models"
	"github.com/digkill/SpeakCoachBot/internal/service"
)

// handleAdminLogin opens the admin panel for users found in the admin set.
// Non-admins get no hint that the command exists.
func (b *Bot) handleAdminLogin(ctx context.Context, msg *tgbotapi.Message) {
	isAdmin, err := b.admins.IsAdmin(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("admin check", "user_id", msg.From.ID, "err", err)
		return
	}
	if !isAdmin {
		b.sendText(msg.Chat.ID, "Неизвестная команда. Используйте /start.")
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendTextWithKeyboard(msg.Chat.ID, "🛠 Админ-панель", adminMenuKeyboard())
}

func (b *Bot) handleAdminCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	isAdmin, err := b.admins.IsAdmin(ctx, cb.From.ID)
	if err != nil {
		b.log.Error("admin check", "user_id", cb.From.ID, "err", err)
		return
	}
	if !isAdmin {
		return
	}

	switch {
	case cb.Data == "admin_menu":
		b.state.Reset(chatID)
		b.editText(chatID, cb.Message.MessageID, "🛠 Админ-панель", adminMenuKeyboard())
	case cb.Data == "admin_edit_prices":
		b.editText(chatID, cb.Message.MessageID, b.pricesOverview(), editPricesKeyboard())
	case strings.HasPrefix(cb.Data, "edit_price_"):
		b.startPriceEdit(chatID, cb.Message.MessageID, models.Tariff(strings.TrimPrefix(cb.Data, "edit_price_")))
	case cb.Data == "admin_manage_admins":
		b.state.Reset(chatID)
		b.editText(chatID, cb.Message.MessageID, "👥 Управление админами", adminManagementKeyboard())
	case cb.Data == "admin_view_admins":
		b.showAdminList(ctx, chatID, cb.Message.MessageID)
	case cb.Data == "admin_add_admin":
		session := b.state.Get(chatID)
		session.State = StateAwaitingAdminAdd
		b.state.Set(chatID, session)
		b.editText(chatID, cb.Message.MessageID,
			"Пришлите ID пользователя или @username, которого нужно сделать админом.", backToAdminsMenuKeyboard())
	case cb.Data == "admin_remove_admin":
		session := b.state.Get(chatID)
		session.State = StateAwaitingAdminRemove
		b.state.Set(chatID, session)
		b.editText(chatID, cb.Message.MessageID,
			"Пришлите ID пользователя или @username, которого нужно убрать из админов.", backToAdminsMenuKeyboard())
	case cb.Data == "admin_view_subscribed":
		b.showSubscribers(ctx, chatID, cb.Message.MessageID)
	}
}

func (b *Bot) pricesOverview() string {
	prices := b.prices.All()
	return fmt.Sprintf(
		"💰 Текущие цены:\n\nНеделя — %d RUB\nМесяц — %d RUB\n1 задание — %d RUB\n\nВыберите тариф для изменения:",
		prices[models.TariffWeek], prices[models.TariffMonth], prices[models.TariffSingle])
}

func (b *Bot) startPriceEdit(chatID int64, messageID int, tariff models.Tariff) {
	if !tariff.Valid() {
		return
	}
	session := b.state.Get(chatID)
	session.State = StateAwaitingNewPrice
	session.TariffToEdit = tariff
	b.state.Set(chatID, session)
	current, _ := b.prices.Price(tariff)
	b.editText(chatID, messageID, fmt.Sprintf(
		"Тариф «%s», текущая цена %d RUB.\nПришлите новую цену числом.",
		tariffTitle(tariff), current), backToAdminMenuKeyboard())
}

func (b *Bot) handleNewPriceInput(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	amount, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || amount <= 0 {
		b.sendText(msg.Chat.ID, "Цена должна быть положительным целым числом. Попробуйте еще раз.")
		return
	}
	if err := b.prices.SetPrice(session.TariffToEdit, amount); err != nil {
		b.log.Error("set price", "tariff", session.TariffToEdit, "err", err)
		b.sendTextWithKeyboard(msg.Chat.ID, "Не удалось сохранить цену.", backToAdminMenuKeyboard())
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendTextWithKeyboard(msg.Chat.ID, fmt.Sprintf(
		"Готово. «%s» теперь стоит %d RUB.", tariffTitle(session.TariffToEdit), amount), backToAdminMenuKeyboard())
}

func (b *Bot) showAdminList(ctx context.Context, chatID int64, messageID int) {
	ids, err := b.admins.List(ctx)
	if err != nil {
		b.log.Error("list admins", "err", err)
		b.editText(chatID, messageID, "Не удалось загрузить список админов.", backToAdminsMenuKeyboard())
		return
	}
	var sb strings.Builder
	sb.WriteString("📃 Админы:\n")
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("• %d", id))
		if id == b.admins.SuperAdminID() {
			sb.WriteString(" (супер-админ)")
		}
		sb.WriteString("\n")
	}
	b.editText(chatID, messageID, sb.String(), backToAdminsMenuKeyboard())
}

func (b *Bot) showSubscribers(ctx context.Context, chatID int64, messageID int) {
	subscribers, err := b.entitlement.ListActiveSubscribers(ctx)
	if err != nil {
		b.log.Error("list subscribers", "err", err)
		b.editText(chatID, messageID, "Не удалось загрузить подписчиков.", backToAdminMenuKeyboard())
		return
	}
	if len(subscribers) == 0 {
		b.editText(chatID, messageID, "Активных подписок нет.", backToAdminMenuKeyboard())
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Активные подписки (%d):\n", len(subscribers)))
	for _, sub := range subscribers {
		name := sub.Username
		if name == "" {
			name = strconv.FormatInt(sub.UserID, 10)
		} else {
			name = "@" + name
		}
		sb.WriteString(fmt.Sprintf("• %s — до %s\n", name, sub.SubscriptionEnd.Format("02.01.2006")))
	}
	b.editText(chatID, messageID, sb.String(), backToAdminMenuKeyboard())
}

func (b *Bot) handleAdminAddInput(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := b.resolveUserRef(ctx, msg.Text)
	if err != nil {
		b.sendText(msg.Chat.ID, err.Error())
		return
	}
	if err := b.admins.Add(ctx, userID); err != nil {
		b.log.Error("add admin", "user_id", userID, "err", err)
		b.sendTextWithKeyboard(msg.Chat.ID, "Не удалось добавить админа.", backToAdminsMenuKeyboard())
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendTextWithKeyboard(msg.Chat.ID, fmt.Sprintf("Пользователь %d теперь админ.", userID), backToAdminsMenuKeyboard())
}

func (b *Bot) handleAdminRemoveInput(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := b.resolveUserRef(ctx, msg.Text)
	if err != nil {
		b.sendText(msg.Chat.ID, err.Error())
		return
	}
	switch err := b.admins.Remove(ctx, userID); {
	case errors.Is(err, service.ErrSuperAdmin):
		b.sendTextWithKeyboard(msg.Chat.ID, "Супер-админа удалить нельзя.", backToAdminsMenuKeyboard())
		return
	case err != nil:
		b.log.Error("remove admin", "user_id", userID, "err", err)
		b.sendTextWithKeyboard(msg.Chat.ID, "Не удалось удалить админа.", backToAdminsMenuKeyboard())
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendTextWithKeyboard(msg.Chat.ID, fmt.Sprintf("Пользователь %d больше не админ.", userID), backToAdminsMenuKeyboard())
}

// resolveUserRef accepts either a numeric user id or an @username known to
// the bot. Unknown usernames cannot be resolved because Telegram does not
// expose a username lookup API.
func (b *Bot) resolveUserRef(ctx context.Context, input string) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, errors.New("Пришлите ID пользователя или @username.")
	}
	if id, err := strconv.ParseInt(input, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	username := strings.TrimPrefix(input, "@")
	user, err := b.entitlement.FindUserByUsername(ctx, username)
	if err != nil {
		b.log.Error("resolve username", "username", username, "err", err)
		return 0, errors.New("Не удалось найти пользователя. Попробуйте позже.")
	}
	if user == nil {
		return 0, errors.New("Такой пользователь боту не известен. Пришлите числовой ID.")
	}
	return user.ID, nil
}
