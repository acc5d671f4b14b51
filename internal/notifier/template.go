package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/types"
)

// DefaultTemplate is used when a notification group carries no template of
// its own.
const DefaultTemplate = `{icon} *{title}*

{message}

Device: {device}
Address: {address}
Location: {location}
Severity: {severity}
Time: {time}
{maps_link}`

// MessageContext carries everything the placeholder table can reference.
type MessageContext struct {
	Icon     string
	Title    string
	Message  string
	Entity   registry.Entity
	Severity types.Severity
	At       time.Time
}

// Render substitutes the fixed placeholder set into a template. The
// substitution table is plain data; templates carry no logic.
func Render(tmpl string, ctx MessageContext) string {
	location := ctx.Entity.Location
	if location == "" {
		location = "-"
	}

	coords := "-"
	mapsLink := ""
	if ctx.Entity.Latitude != 0 || ctx.Entity.Longitude != 0 {
		coords = fmt.Sprintf("%.6f,%.6f", ctx.Entity.Latitude, ctx.Entity.Longitude)
		mapsLink = "https://maps.google.com/?q=" + coords
	}

	table := map[string]string{
		"{icon}":      ctx.Icon,
		"{title}":     ctx.Title,
		"{message}":   ctx.Message,
		"{device}":    ctx.Entity.Name,
		"{address}":   ctx.Entity.Address,
		"{location}":  location,
		"{coords}":    coords,
		"{maps_link}": mapsLink,
		"{time}":      ctx.At.Format(time.RFC3339),
		"{severity}":  string(ctx.Severity),
	}

	out := tmpl
	for placeholder, value := range table {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return strings.TrimSpace(out)
}

// severityIcon maps severity to the marker used at the head of a message.
func severityIcon(sev types.Severity, resolved bool) string {
	if resolved {
		return "🟢"
	}
	switch sev {
	case types.SeverityCritical:
		return "🔴"
	case types.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
