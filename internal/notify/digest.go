package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"salonbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AppointmentLister reads appointments for a date range.
type AppointmentLister interface {
	ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error)
}

// StartDailyDigest sends managers tomorrow's active appointments every day
// at hour (salon time). It returns immediately.
func (n *ManagerNotifier) StartDailyDigest(ctx context.Context, source AppointmentLister, hour int) {
	go func() {
		timer := time.NewTimer(timeUntilNextHour(time.Now().In(n.loc), hour))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := n.sendDigest(ctx, source, time.Now().In(n.loc)); err != nil {
					n.logger.Error().Err(err).Msg("daily digest")
				}
				timer.Reset(timeUntilNextHour(time.Now().In(n.loc), hour))
			}
		}
	}()
}

func (n *ManagerNotifier) sendDigest(ctx context.Context, source AppointmentLister, now time.Time) error {
	tomorrow := now.AddDate(0, 0, 1).Format(models.DateLayout)
	appts, err := source.ListAppointments(ctx, tomorrow, tomorrow)
	if err != nil {
		return fmt.Errorf("list appointments %s: %w", tomorrow, err)
	}

	text := FormatDigest(tomorrow, appts)
	for _, chatID := range n.recipients.GetManagerChatIDs() {
		select {
		case n.queue <- tgbotapi.NewMessage(chatID, text):
		default:
			return ErrQueueFull
		}
	}
	return nil
}

// FormatDigest lists the active appointments of date in start order.
func FormatDigest(date string, appts []models.Appointment) string {
	active := make([]models.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == models.StatusActive {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].TimeStart < active[j].TimeStart })

	var b strings.Builder
	fmt.Fprintf(&b, "Записи на %s: %d\n", formatDate(date), len(active))
	for _, a := range active {
		fmt.Fprintf(&b, "\n%s–%s %s, %s %s", a.TimeStart, a.TimeEnd, a.ServiceKey, a.ContactName, a.ContactPhone)
	}
	return b.String()
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
