package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc"

	"students-timetable/internal/core/services"
	"students-timetable/internal/domain"
	"students-timetable/internal/pkg/config"
	"students-timetable/internal/ports"
	"students-timetable/internal/subscribers"
)

const (
	cmdStart       = "start"
	cmdHelp        = "help"
	cmdGroup       = "group"
	cmdGroups      = "groups"
	cmdDay         = "day"
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdRefresh     = "refresh"
	cmdStatus      = "status"
	cmdExport      = "export"

	buttonDay         = "Расписание на день"
	buttonMyGroups    = "Мои группы"
	buttonGroup       = "Выбрать группу"
	buttonSubscribe   = "Включить уведомления"
	buttonUnsubscribe = "Выключить уведомления"

	pendingInputTTL = 5 * time.Minute
)

var buttonCommands = map[string]string{
	buttonDay:         cmdDay,
	buttonMyGroups:    cmdGroups,
	buttonGroup:       cmdGroup,
	buttonSubscribe:   cmdSubscribe,
	buttonUnsubscribe: cmdUnsubscribe,
}

const helpText = "Я присылаю расписание пар и сообщаю об изменениях.\n\n" +
	"/group <номер> - выбрать группу (можно несколько через пробел)\n" +
	"/groups - мои группы\n" +
	"/day - расписание на текущий день\n" +
	"/subscribe - включить уведомления\n" +
	"/unsubscribe - выключить уведомления"

// Refresher - часть координатора, которую использует бот.
type Refresher interface {
	Begin() (*services.Cycle, bool)
	State() services.State
	LastReport() (services.CycleReport, bool)
}

// SpamGuard ограничивает частоту обращений пользователей.
type SpamGuard interface {
	// Observe учитывает обращение и возвращает true, если пользователь только что попал в спам-лист.
	Observe(userID int64) bool
	IsBlocked(userID int64) bool
	BanDuration() time.Duration
}

// Deps - зависимости бота.
type Deps struct {
	Subscribers ports.SubscriberStore
	Snapshots   ports.SnapshotReader
	Renderer    ports.Renderer
	Refresher   Refresher
	Exporter    ports.Exporter
	Guard       SpamGuard
}

// Bot представляет собой основной объект Telegram-бота.
type Bot struct {
	api           *tgbotapi.BotAPI
	cfg           config.Telegram
	allowedGroups []string
	deps          Deps
	pending       *PendingStore
	wg            conc.WaitGroup
	logger        *slog.Logger

	// sendMessageFunc подменяется в тестах.
	sendMessageFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot создает бота поверх уже авторизованного api.
// allowedGroups - список допустимых групп, пустой список означает группы из текущего снимка.
func NewBot(api *tgbotapi.BotAPI, cfg config.Telegram, allowedGroups []string, deps Deps, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		api:           api,
		cfg:           cfg,
		allowedGroups: allowedGroups,
		deps:          deps,
		pending:       NewPendingStore(pendingInputTTL),
		logger:        logger,
	}
	if api != nil {
		b.sendMessageFunc = api.Send
	}
	return b
}

// Start запускает основной цикл обработки обновлений от Telegram.
// Возвращает управление после отмены ctx и завершения запущенных ботом циклов обновления.
func (b *Bot) Start(ctx context.Context) {
	defer b.wg.Wait()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.UpdatesTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bot...")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate пропускает обновление через антиспам и передает сообщение обработчику.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if guard := b.deps.Guard; guard != nil {
		userID := msg.From.ID
		if guard.IsBlocked(userID) {
			b.logger.Debug("update from blocked user dropped", slog.Int64("user_id", userID))
			return
		}
		if guard.Observe(userID) {
			b.logger.Warn("user added to spam list", slog.Int64("user_id", userID))
			b.reply(msg.Chat.ID, banText(guard.BanDuration()))
			return
		}
	}

	b.handleMessage(ctx, msg)
}

func banText(d time.Duration) string {
	m := minutesRu(d)
	return fmt.Sprintf("Вы были добавлены в спам лист на %s. Разбан через %s.", m, m)
}

// minutesRu округляет длительность вверх до минут и согласует слово "минута".
func minutesRu(d time.Duration) string {
	n := int((d + time.Minute - 1) / time.Minute)
	if n < 1 {
		n = 1
	}
	word := "минут"
	switch {
	case n%100 >= 11 && n%100 <= 14:
	case n%10 == 1:
		word = "минуту"
	case n%10 >= 2 && n%10 <= 4:
		word = "минуты"
	}
	return fmt.Sprintf("%d %s", n, word)
}

// handleMessage обрабатывает входящее сообщение.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.pending.Delete(msg.Chat.ID)
		b.handleCommand(ctx, msg, msg.Command(), msg.CommandArguments())
		return
	}

	text := strings.TrimSpace(msg.Text)
	if cmd, ok := buttonCommands[text]; ok {
		b.pending.Delete(msg.Chat.ID)
		b.handleCommand(ctx, msg, cmd, "")
		return
	}

	if text != "" && b.pending.Take(msg.Chat.ID) {
		b.setGroups(ctx, msg, text)
		return
	}

	b.reply(msg.Chat.ID, helpText)
}

// handleCommand обрабатывает команды.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, command, args string) {
	chatID := msg.Chat.ID

	switch command {
	case cmdStart:
		b.handleStart(ctx, msg)
	case cmdHelp:
		b.reply(chatID, helpText)
	case cmdGroup:
		if strings.TrimSpace(args) == "" {
			b.pending.Set(chatID)
			b.reply(chatID, "Введите номер группы (например, 53). Можно несколько через пробел.")
			return
		}
		b.setGroups(ctx, msg, args)
	case cmdGroups:
		b.handleGroups(ctx, msg)
	case cmdDay:
		b.handleDay(ctx, msg)
	case cmdSubscribe:
		b.setNotifications(ctx, msg, true)
	case cmdUnsubscribe:
		b.setNotifications(ctx, msg, false)
	case cmdRefresh, cmdStatus, cmdExport:
		if !b.isAdmin(msg.From.ID) {
			b.reply(chatID, "Я не знаю такой команды.")
			return
		}
		b.handleAdminCommand(ctx, msg, command)
	default:
		b.reply(chatID, "Я не знаю такой команды.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	sub, err := b.register(ctx, msg.From, true)
	if err != nil {
		b.logger.Error("failed to register user", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(msg.Chat.ID, "Не удалось сохранить данные. Попробуйте позже.")
		return
	}

	text := "Добро пожаловать! " + helpText
	if len(sub.Groups) == 0 {
		text += "\n\nДля начала выберите группу."
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyMarkup = mainKeyboard()
	b.sendMessage(reply)
}

func (b *Bot) setGroups(ctx context.Context, msg *tgbotapi.Message, input string) {
	chatID := msg.Chat.ID
	groups := parseGroupIDs(input)
	if len(groups) == 0 {
		b.reply(chatID, "Не удалось разобрать номер группы.")
		return
	}

	if known := b.knownGroups(); len(known) > 0 {
		var unknown []string
		for _, g := range groups {
			if !contains(known, g) {
				unknown = append(unknown, g)
			}
		}
		if len(unknown) > 0 {
			b.reply(chatID, fmt.Sprintf("Неизвестная группа: %s\nДоступные группы: %s",
				strings.Join(unknown, ", "), strings.Join(known, ", ")))
			return
		}
	}

	if _, err := b.register(ctx, msg.From, false); err != nil {
		b.logger.Error("failed to register user", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(chatID, "Не удалось сохранить данные. Попробуйте позже.")
		return
	}
	if err := b.deps.Subscribers.SetGroups(ctx, msg.From.ID, groups); err != nil {
		b.logger.Error("failed to set groups", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(chatID, "Не удалось сохранить группу. Попробуйте позже.")
		return
	}

	b.logger.Info("user groups updated", slog.Int64("user_id", msg.From.ID), slog.Any("groups", groups))
	b.reply(chatID, "Группы сохранены: "+strings.Join(groups, ", "))
}

func (b *Bot) handleGroups(ctx context.Context, msg *tgbotapi.Message) {
	sub, ok := b.subscriberWithGroups(ctx, msg)
	if !ok {
		return
	}

	state := "выключены"
	if sub.NotificationsEnabled {
		state = "включены"
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Ваши группы: %s\nУведомления: %s", strings.Join(sub.Groups, ", "), state))
}

func (b *Bot) handleDay(ctx context.Context, msg *tgbotapi.Message) {
	sub, ok := b.subscriberWithGroups(ctx, msg)
	if !ok {
		return
	}

	day, ok := b.deps.Snapshots.Read().Latest()
	if !ok {
		b.reply(msg.Chat.ID, "Расписание еще не загружено.")
		return
	}

	for _, groupID := range sub.Groups {
		group, exists := day.Groups[groupID]
		if !exists {
			b.reply(msg.Chat.ID, fmt.Sprintf("Группы %s нет в расписании на %s.", groupID, day.Date))
			continue
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, b.deps.Renderer.RenderGroupDay(day.Date, group))
		reply.ParseMode = b.cfg.ParseMode
		b.sendMessage(reply)
	}
}

func (b *Bot) setNotifications(ctx context.Context, msg *tgbotapi.Message, enabled bool) {
	chatID := msg.Chat.ID
	if _, err := b.register(ctx, msg.From, false); err != nil {
		b.logger.Error("failed to register user", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(chatID, "Не удалось сохранить данные. Попробуйте позже.")
		return
	}
	if err := b.deps.Subscribers.SetNotifications(ctx, msg.From.ID, enabled); err != nil {
		b.logger.Error("failed to set notifications", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(chatID, "Не удалось сохранить настройку. Попробуйте позже.")
		return
	}

	if enabled {
		b.reply(chatID, "Уведомления включены.")
	} else {
		b.reply(chatID, "Уведомления выключены.")
	}
}

// handleAdminCommand обрабатывает служебные команды администраторов.
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message, command string) {
	chatID := msg.Chat.ID
	logger := b.logger.With(slog.Int64("admin_id", msg.From.ID), slog.String("command", command))

	switch command {
	case cmdRefresh:
		cycle, ok := b.deps.Refresher.Begin()
		if !ok {
			b.reply(chatID, "Обновление уже выполняется (состояние: "+b.deps.Refresher.State().String()+").")
			return
		}
		logger.Info("manual refresh started", slog.String("cycle_id", cycle.ID))
		b.reply(chatID, "Обновление запущено: "+cycle.ID)
		b.wg.Go(func() {
			report := cycle.Run(ctx)
			b.reply(chatID, FormatReport(report))
		})

	case cmdStatus:
		b.reply(chatID, b.statusText(ctx))

	case cmdExport:
		snapshot := b.deps.Snapshots.Read()
		var buf bytes.Buffer
		if err := b.deps.Exporter.Export(&buf, snapshot); err != nil {
			logger.Error("failed to export timetable", "error", err)
			b.reply(chatID, "Не удалось сгенерировать Excel-файл.")
			return
		}

		fileName := fmt.Sprintf("timetable_v%d_%s.xlsx", b.deps.Snapshots.Version(), time.Now().Format("2006-01-02_15-04-05"))
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: buf.Bytes()})
		doc.Caption = fmt.Sprintf("Снимок версии %d, дней: %d.", b.deps.Snapshots.Version(), len(snapshot.Days))
		b.sendMessage(doc)
	}
}

func (b *Bot) statusText(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Состояние: %s\n", b.deps.Refresher.State()))
	sb.WriteString(fmt.Sprintf("Версия снимка: %d\n", b.deps.Snapshots.Version()))
	if day, ok := b.deps.Snapshots.Read().Latest(); ok {
		sb.WriteString(fmt.Sprintf("День: %s, групп: %d\n", day.Date, len(day.Groups)))
	}

	if all, err := b.deps.Subscribers.ListSubscribers(ctx, domain.SubscriberFilter{}); err == nil {
		enabled := 0
		for _, s := range all {
			if s.NotificationsEnabled {
				enabled++
			}
		}
		sb.WriteString(fmt.Sprintf("Пользователей: %d, с уведомлениями: %d\n", len(all), enabled))
	}

	if report, ok := b.deps.Refresher.LastReport(); ok {
		sb.WriteString("\nПоследний цикл:\n")
		sb.WriteString(FormatReport(report))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatReport превращает отчет о цикле в текст для администратора.
func FormatReport(r services.CycleReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Цикл %s: %s\n", r.ID, r.Outcome))
	if r.Date != "" {
		sb.WriteString(fmt.Sprintf("Дата: %s\n", r.Date))
	}
	if r.FullReplace {
		sb.WriteString(fmt.Sprintf("Загружено групп: %d\n", len(r.ChangedGroups)))
	} else if len(r.ChangedGroups) > 0 {
		sb.WriteString(fmt.Sprintf("Изменены группы: %s\n", strings.Join(r.ChangedGroups, ", ")))
	}
	if r.Delivery.Selected > 0 {
		sb.WriteString(fmt.Sprintf("Доставлено: %d из %d\n", r.Delivery.Delivered, r.Delivery.Selected))
	}
	if r.WeekChanged {
		sb.WriteString("Вышло новое недельное расписание\n")
	}
	if len(r.GroupErrors) > 0 {
		sb.WriteString(fmt.Sprintf("Ошибок в группах: %d\n", len(r.GroupErrors)))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("Ошибка: %s\n", r.Error))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// register создает или обновляет запись пользователя. enable принудительно включает уведомления.
func (b *Bot) register(ctx context.Context, user *tgbotapi.User, enable bool) (domain.Subscriber, error) {
	sub, err := b.deps.Subscribers.Get(ctx, user.ID)
	switch {
	case errors.Is(err, subscribers.ErrNotFound):
		sub = domain.Subscriber{UserID: user.ID, NotificationsEnabled: true}
	case err != nil:
		return sub, err
	}

	sub.Username = user.UserName
	sub.FirstName = user.FirstName
	sub.LastName = user.LastName
	if enable {
		sub.NotificationsEnabled = true
	}
	return sub, b.deps.Subscribers.Upsert(ctx, sub)
}

// subscriberWithGroups возвращает пользователя с выбранными группами или отвечает подсказкой.
func (b *Bot) subscriberWithGroups(ctx context.Context, msg *tgbotapi.Message) (domain.Subscriber, bool) {
	sub, err := b.deps.Subscribers.Get(ctx, msg.From.ID)
	if err != nil && !errors.Is(err, subscribers.ErrNotFound) {
		b.logger.Error("failed to load user", slog.Int64("user_id", msg.From.ID), "error", err)
		b.reply(msg.Chat.ID, "Не удалось загрузить данные. Попробуйте позже.")
		return sub, false
	}
	if len(sub.Groups) == 0 {
		b.reply(msg.Chat.ID, "Группа не выбрана. Используйте /group <номер>.")
		return sub, false
	}
	return sub, true
}

// knownGroups возвращает список групп, которые можно выбрать.
func (b *Bot) knownGroups() []string {
	if len(b.allowedGroups) > 0 {
		return b.allowedGroups
	}
	if day, ok := b.deps.Snapshots.Read().Latest(); ok {
		return day.GroupIDs()
	}
	return nil
}

func (b *Bot) isAdmin(userID int64) bool {
	return contains(b.cfg.AdminIDs, userID)
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if _, err := b.sendMessageFunc(msg); err != nil {
		b.logger.Error("failed to send message", "error", err)
	}
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonDay),
			tgbotapi.NewKeyboardButton(buttonMyGroups),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonGroup),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSubscribe),
			tgbotapi.NewKeyboardButton(buttonUnsubscribe),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// parseGroupIDs разбирает номера групп, разделенные пробелами или запятыми. Повторы отбрасываются.
func parseGroupIDs(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})

	var groups []string
	for _, f := range fields {
		if !contains(groups, f) {
			groups = append(groups, f)
		}
	}
	return groups
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
