package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/types"
)

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	entity := registry.Entity{
		Name:      "core-router",
		Address:   "10.0.0.1",
		Location:  "Tower A",
		Latitude:  -6.2,
		Longitude: 106.8,
	}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	out := Render("{icon}|{title}|{message}|{device}|{address}|{location}|{coords}|{maps_link}|{time}|{severity}", MessageContext{
		Icon:     "🔴",
		Title:    "down",
		Message:  "no response",
		Entity:   entity,
		Severity: types.SeverityCritical,
		At:       at,
	})

	assert.Contains(t, out, "core-router")
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "Tower A")
	assert.Contains(t, out, "-6.200000,106.800000")
	assert.Contains(t, out, "https://maps.google.com/?q=-6.200000,106.800000")
	assert.Contains(t, out, "2025-03-01T12:00:00Z")
	assert.Contains(t, out, "critical")
	assert.NotContains(t, out, "{")
}

func TestRenderWithoutCoordinates(t *testing.T) {
	out := Render(DefaultTemplate, MessageContext{
		Icon:    "ℹ️",
		Title:   "t",
		Message: "m",
		Entity:  registry.Entity{Name: "r1"},
		At:      time.Now(),
	})
	assert.NotContains(t, out, "maps.google.com")
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "628123456789@s.whatsapp.net", NormalizeTarget("628123456789"))
	assert.Equal(t, "628123456789-1610000000@g.us", NormalizeTarget("628123456789-1610000000"))
	assert.Equal(t, "custom@g.us", NormalizeTarget("custom@g.us"))
}

func TestSeverityIcon(t *testing.T) {
	assert.Equal(t, "🔴", severityIcon(types.SeverityCritical, false))
	assert.Equal(t, "⚠️", severityIcon(types.SeverityWarning, false))
	assert.Equal(t, "ℹ️", severityIcon(types.SeverityInfo, false))
	assert.Equal(t, "🟢", severityIcon(types.SeverityCritical, true))
}

func dispatcherFixture(t *testing.T, tgHandler, waHandler http.HandlerFunc) (*Dispatcher, registry.Entity) {
	t.Helper()

	tgSrv := httptest.NewServer(tgHandler)
	t.Cleanup(tgSrv.Close)
	waSrv := httptest.NewServer(waHandler)
	t.Cleanup(waSrv.Close)

	t.Setenv("TEST_TG_TOKEN", "tok123")

	cfg := &config.Config{
		Groups: map[string]config.GroupConfig{
			"noc": {
				Telegram: &config.TelegramChannel{TokenEnv: "TEST_TG_TOKEN", ChatID: "-1001"},
				WhatsApp: &config.WhatsAppChannel{Endpoint: waSrv.URL, Target: "628111"},
			},
		},
	}

	d := NewDispatcher(cfg, zerolog.Nop())
	d.telegram = NewTelegram(tgSrv.URL)

	entity := registry.Entity{ID: "router/r1", Name: "r1", Address: "10.0.0.1", Group: "noc"}
	return d, entity
}

func TestNotifySendsToBothChannels(t *testing.T) {
	var tgBody, waBody atomic.Value

	d, entity := dispatcherFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
			var msg telegramMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			tgBody.Store(msg)
		},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/send/message", r.URL.Path)
			var msg whatsappMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			waBody.Store(msg)
		},
	)

	alert := types.Alert{
		Title:     "r1 is down",
		Message:   "no response",
		Severity:  types.SeverityCritical,
		CreatedAt: time.Now(),
	}
	d.Notify(alert, entity)
	d.Wait()

	tg := tgBody.Load().(telegramMessage)
	assert.Equal(t, "-1001", tg.ChatID)
	assert.Equal(t, "Markdown", tg.ParseMode)
	assert.Contains(t, tg.Text, "r1 is down")

	wa := waBody.Load().(whatsappMessage)
	assert.Equal(t, "628111@s.whatsapp.net", wa.Phone)
	assert.Contains(t, wa.Message, "r1 is down")
}

func TestFailingChannelDoesNotBlockTheOther(t *testing.T) {
	var waCalls atomic.Int32

	d, entity := dispatcherFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		func(w http.ResponseWriter, r *http.Request) {
			waCalls.Add(1)
		},
	)

	d.Notify(types.Alert{Title: "x", Severity: types.SeverityCritical, CreatedAt: time.Now()}, entity)
	d.Wait()

	assert.Equal(t, int32(1), waCalls.Load())
}

func TestNotifyEscalationEmbedsLevelAndDowntime(t *testing.T) {
	var tgText atomic.Value

	d, entity := dispatcherFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			var msg telegramMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			tgText.Store(msg.Text)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	alert := types.Alert{Title: "r1 is down", Message: "no response", Severity: types.SeverityCritical}
	d.NotifyEscalation(alert, entity, 3, 45*time.Minute)
	d.Wait()

	text := tgText.Load().(string)
	assert.Contains(t, text, "ESCALATION L3")
	assert.Contains(t, text, "45m0s")
}

func TestHandleResolvedOnlyNotifiesAfterEscalation(t *testing.T) {
	var tgCalls atomic.Int32

	d, entity := dispatcherFixture(t,
		func(w http.ResponseWriter, r *http.Request) { tgCalls.Add(1) },
		func(w http.ResponseWriter, r *http.Request) {},
	)
	resolve := func(string) (registry.Entity, bool) { return entity, true }

	quiet := types.Alert{Title: "t", Resolved: true, EscalationLevel: 0}
	d.Handle(types.Event{Kind: types.EventAlertResolved, EntityID: entity.ID, Alert: &quiet}, resolve)
	d.Wait()
	assert.Equal(t, int32(0), tgCalls.Load())

	loud := types.Alert{Title: "t", Resolved: true, EscalationLevel: 2}
	d.Handle(types.Event{Kind: types.EventAlertResolved, EntityID: entity.ID, Alert: &loud}, resolve)
	d.Wait()
	assert.Equal(t, int32(1), tgCalls.Load())
}

func TestNotifyWithoutGroupIsNoop(t *testing.T) {
	d := NewDispatcher(&config.Config{}, zerolog.Nop())
	d.Notify(types.Alert{Title: "x"}, registry.Entity{ID: "router/r9"})
	d.Wait()
}
