// Package http serves the ledger's HTML surface.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponseBuilder assembles fragment responses together with the
// HX-Trigger events the layout listens for.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    http.Header
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds an HX-Trigger event. A later call with the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

func (b *HTMXResponseBuilder) TriggerProjectSaved(id string) *HTMXResponseBuilder {
	return b.Trigger("project:saved", map[string]string{"id": id})
}

func (b *HTMXResponseBuilder) TriggerProjectDeleted(id string) *HTMXResponseBuilder {
	return b.Trigger("project:deleted", map[string]string{"id": id})
}

// NotificationType selects the toast style in the layout.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// Errors stay up longer than confirmations.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Redirect asks htmx to navigate the whole page to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers.Set(name, value)
	return b
}

// Fragment sets an HTML body. The caller is responsible for escaping.
func (b *HTMXResponseBuilder) Fragment(html string) *HTMXResponseBuilder {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(html)
	return b
}

// Write sends headers, triggers and body. Triggers that fail to encode are
// dropped rather than failing the response.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, values := range b.headers {
		w.Header()[name] = values
	}
	if len(b.triggers) > 0 {
		if encoded, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(encoded))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, as an error box fragment.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		Fragment(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}
