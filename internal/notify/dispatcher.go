package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/sirupsen/logrus"
)

// Sender доставляет уведомление по одному каналу
type Sender interface {
	Channel() string
	Send(ctx context.Context, alert *models.Alert) error
}

// Result - итог рассылки по всем каналам
type Result struct {
	Delivered []string
	Failures  map[string]string
}

// AllFailed - ни один канал не сработал, и хотя бы один пытался
func (r Result) AllFailed() bool {
	return len(r.Delivered) == 0 && len(r.Failures) > 0
}

// Reason собирает причины отказов в одну строку, отсортированную по каналу
func (r Result) Reason() string {
	channels := make([]string, 0, len(r.Failures))
	for ch := range r.Failures {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, fmt.Sprintf("%s: %s", ch, r.Failures[ch]))
	}
	return strings.Join(parts, "; ")
}

// Dispatcher рассылает уведомление по всем зарегистрированным каналам
type Dispatcher struct {
	senders []Sender
	logger  *logrus.Logger
	timeout time.Duration
}

func NewDispatcher(logger *logrus.Logger, timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{senders: senders, logger: logger, timeout: timeout}
}

// Dispatch отправляет уведомление во все каналы. Ошибки каналов не
// возвращаются, а попадают в Result.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) Result {
	res := Result{Delivered: []string{}, Failures: map[string]string{}}
	log := d.logger.WithFields(logrus.Fields{
		"component": "notify",
		"alert_id":  alert.ID,
		"user_id":   alert.UserID,
	})

	for _, s := range d.senders {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Send(sendCtx, alert)
		cancel()
		if err != nil {
			log.WithError(err).WithField("channel", s.Channel()).Warn("Notification channel failed")
			res.Failures[s.Channel()] = err.Error()
			continue
		}
		res.Delivered = append(res.Delivered, s.Channel())
	}
	return res
}
