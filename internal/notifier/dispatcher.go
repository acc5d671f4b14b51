package notifier

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/types"
)

const sendTimeout = 15 * time.Second

// Dispatcher renders alert events into channel messages and delivers them to
// every enabled channel of the entity's notification group. Delivery is
// fire-and-forget: a failing channel is logged, never retried, and never
// blocks the other channel or the caller.
type Dispatcher struct {
	cfg      *config.Config
	telegram *Telegram
	whatsapp *WhatsApp
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the configured notification groups.
func NewDispatcher(cfg *config.Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		telegram: NewTelegram(""),
		whatsapp: NewWhatsApp(),
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify sends the alert (or its recovery) to the entity's group.
func (d *Dispatcher) Notify(alert types.Alert, entity registry.Entity) {
	d.notify(alert, entity, alert.Resolved)
}

// notify renders and delivers. recovered controls the recovery framing, which
// is separate from Resolved because instantaneous event alerts (a reboot, a
// PPPoE reconnect) enter history already resolved yet announce a fresh
// occurrence.
func (d *Dispatcher) notify(alert types.Alert, entity registry.Entity, recovered bool) {
	group, ok := d.groupFor(entity)
	if !ok {
		return
	}

	tmpl := group.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	title := alert.Title
	if recovered {
		title = "Recovered: " + alert.Title
	}
	text := Render(tmpl, MessageContext{
		Icon:     severityIcon(alert.Severity, recovered),
		Title:    title,
		Message:  alert.Message,
		Entity:   entity,
		Severity: alert.Severity,
		At:       alert.CreatedAt,
	})

	d.deliver(group, entity, text)
}

// NotifyEscalation sends the escalation-specific message carrying the level
// and cumulative downtime.
func (d *Dispatcher) NotifyEscalation(alert types.Alert, entity registry.Entity, level int, downtime time.Duration) {
	group, ok := d.groupFor(entity)
	if !ok {
		return
	}

	text := Render(DefaultTemplate, MessageContext{
		Icon:     "🚨",
		Title:    fmt.Sprintf("ESCALATION L%d: %s", level, alert.Title),
		Message:  fmt.Sprintf("%s\nDown for %s, still unresolved.", alert.Message, downtime.Round(time.Second)),
		Entity:   entity,
		Severity: alert.Severity,
		At:       time.Now(),
	})

	d.deliver(group, entity, text)
}

// deliver fans the rendered text out to each enabled channel. Channels send
// concurrently and independently so one failing or slow channel never blocks
// the other or the caller; errors stop at the log. wait is exposed for tests.
func (d *Dispatcher) deliver(group config.GroupConfig, entity registry.Entity, text string) {
	if group.Telegram != nil {
		d.wg.Add(1)
		go func(ch config.TelegramChannel) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			token := os.Getenv(ch.TokenEnv)
			if token == "" {
				d.logger.Warn().Str("token_env", ch.TokenEnv).Msg("telegram token not set, skipping")
				return
			}
			if err := d.telegram.Send(ctx, token, ch.ChatID, ch.ThreadID, text); err != nil {
				d.logger.Error().Err(err).Str("entity", entity.ID).Msg("telegram delivery failed")
				return
			}
			d.logger.Debug().Str("entity", entity.ID).Str("chat_id", ch.ChatID).Msg("telegram sent")
		}(*group.Telegram)
	}

	if group.WhatsApp != nil {
		d.wg.Add(1)
		go func(ch config.WhatsAppChannel) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			token := ""
			if ch.TokenEnv != "" {
				token = os.Getenv(ch.TokenEnv)
			}
			if err := d.whatsapp.Send(ctx, ch.Endpoint, token, ch.Target, text); err != nil {
				d.logger.Error().Err(err).Str("entity", entity.ID).Msg("whatsapp delivery failed")
				return
			}
			d.logger.Debug().Str("entity", entity.ID).Str("target", ch.Target).Msg("whatsapp sent")
		}(*group.WhatsApp)
	}
}

// Wait blocks until in-flight deliveries finish. Used during shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) groupFor(entity registry.Entity) (config.GroupConfig, bool) {
	if entity.Group == "" {
		return config.GroupConfig{}, false
	}
	group, ok := d.cfg.Groups[entity.Group]
	return group, ok
}

// Handle turns one engine lifecycle event into notifications. Poll results
// and state changes pass through silently; the broadcaster handles those.
// Never blocks: deliveries run on their own goroutines.
func (d *Dispatcher) Handle(ev types.Event, resolve func(id string) (registry.Entity, bool)) {
	if ev.Alert == nil {
		return
	}
	entity, ok := resolve(ev.EntityID)
	if !ok {
		return
	}

	switch ev.Kind {
	case types.EventAlertCreated:
		d.notify(*ev.Alert, entity, false)
	case types.EventAlertEscalated:
		d.NotifyEscalation(*ev.Alert, entity, ev.Level, ev.Downtime)
	case types.EventAlertResolved:
		// Recovery notifications only follow an escalated outage; routine
		// resolutions stay quiet.
		if ev.Alert.EscalationLevel > 0 {
			d.notify(*ev.Alert, entity, true)
		}
	}
}
