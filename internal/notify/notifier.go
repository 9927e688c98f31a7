// Package notify forwards booking events to salon managers over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/events"
	"salonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by event handlers when the send queue is saturated.
var ErrQueueFull = errors.New("notify: queue full")

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Recipients yields the chats that receive manager notifications.
type Recipients interface {
	GetManagerChatIDs() []int64
}

type Options struct {
	QueueSize      int
	MessagesPerSec float64
	Location       *time.Location
}

// ManagerNotifier turns booking events into Telegram messages.
// Handlers only enqueue; Run performs the throttled sends.
type ManagerNotifier struct {
	sender     TelegramSender
	recipients Recipients
	limiter    *rate.Limiter
	queue      chan tgbotapi.MessageConfig
	loc        *time.Location
	logger     zerolog.Logger
}

func NewManagerNotifier(sender TelegramSender, recipients Recipients, opts Options, logger *zerolog.Logger) *ManagerNotifier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MessagesPerSec <= 0 {
		// Telegram allows roughly 30 messages per second per bot
		opts.MessagesPerSec = 25
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &ManagerNotifier{
		sender:     sender,
		recipients: recipients,
		limiter:    rate.NewLimiter(rate.Limit(opts.MessagesPerSec), 1),
		queue:      make(chan tgbotapi.MessageConfig, opts.QueueSize),
		loc:        opts.Location,
		logger:     l.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers handlers for the events managers care about.
func (n *ManagerNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.BookingCreated, n.handle)
	bus.Subscribe(events.BookingCancelled, n.handle)
	bus.Subscribe(events.BookingSuperseded, n.handle)
}

func (n *ManagerNotifier) handle(ev events.Event) error {
	var a models.Appointment
	if err := ev.Decode(&a); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	text := FormatMessage(ev.Type, &a)
	if text == "" {
		return nil
	}

	for _, chatID := range n.recipients.GetManagerChatIDs() {
		select {
		case n.queue <- tgbotapi.NewMessage(chatID, text):
		default:
			return ErrQueueFull
		}
	}
	return nil
}

// Run drains the queue until ctx is cancelled.
func (n *ManagerNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.sender.Send(msg); err != nil {
				n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("send notification")
			}
		}
	}
}

// Pending returns the number of queued messages.
func (n *ManagerNotifier) Pending() int {
	return len(n.queue)
}

// FormatMessage renders the manager-facing text for an event.
func FormatMessage(evType string, a *models.Appointment) string {
	var title string
	switch evType {
	case events.BookingCreated:
		title = "Новая запись"
	case events.BookingCancelled:
		title = "Запись отменена"
	case events.BookingSuperseded:
		title = "Запись снята (слот занят параллельно)"
	default:
		return ""
	}

	text := fmt.Sprintf("%s\nУслуга: %s\nДата: %s\nВремя: %s–%s\nКлиент: %s\nТелефон: %s",
		title, a.ServiceKey, formatDate(a.Date), a.TimeStart, a.TimeEnd, a.ContactName, a.ContactPhone)
	if a.Comment != "" {
		text += "\nКомментарий: " + a.Comment
	}
	if evType == events.BookingCreated {
		text += "\nКод отмены: " + a.CancelCode
	}
	return text
}

func formatDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01.2006")
}
