package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/shared"
	"golang.org/x/time/rate"
)

// Severity selects the embed color of a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) color() int {
	switch s {
	case SeveritySuccess:
		return 0x2ecc71
	case SeverityWarning:
		return 0xf1c40f
	case SeverityError:
		return 0xe74c3c
	default:
		return 0x3498db
	}
}

// Message is one operator notification.
type Message struct {
	Title     string
	Body      string
	Severity  Severity
	Timestamp time.Time
}

// Notifier delivers operator notifications. Delivery is best effort: callers log
// returned errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NopNotifier discards every message.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Message) error { return nil }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts embeds to a Discord-compatible webhook.
type DiscordNotifier struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewDiscordNotifier creates a notifier limited to perSecond posts per second. A
// non-positive rate disables limiting.
func NewDiscordNotifier(url string, perSecond float64, client *http.Client, logger *log.Logger) *DiscordNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &DiscordNotifier{url: url, httpClient: client, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

func (d *DiscordNotifier) Notify(ctx context.Context, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotifyFailed, err)
	}

	embed := discordEmbed{
		Title:       shared.Truncate(msg.Title, 256),
		Description: shared.Truncate(msg.Body, 4000),
		Color:       msg.Severity.color(),
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotifyFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotifyFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: webhook status %d: %s", shared.ErrNotifyFailed, resp.StatusCode, bytes.TrimSpace(detail))
	}

	d.logger.Debug("notification sent", "title", msg.Title)
	return nil
}

// NewNotifier returns a [DiscordNotifier] when a webhook is configured, otherwise a [NopNotifier].
func NewNotifier(cfg shared.NotifyConfig, logger *log.Logger) Notifier {
	if cfg.WebhookURL == "" {
		return NopNotifier{}
	}
	return NewDiscordNotifier(cfg.WebhookURL, cfg.Rate, nil, logger)
}
