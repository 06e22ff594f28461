// Package notify delivers an alert payload to a notification channel
// (webhook or telegram). Grounded on the teacher's net/http client
// conventions in internal/api/sabnzbd.go (explicit timeouts, errors logged
// rather than propagated to the caller that triggered the notification).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/m360/sentinel/internal/model"
)

const requestTimeout = 10 * time.Second

// ChannelGetter fetches a notification channel by ID.
type ChannelGetter interface {
	GetNotificationChannel(id string) (*model.NotificationChannel, error)
}

// Payload is the substitutable content of one alert firing.
type Payload struct {
	SensorName string
	ClientName string
	IP         string
	Reason     string
}

// Notifier dispatches alert payloads to configured channels.
type Notifier struct {
	channels ChannelGetter
	client   *http.Client
}

// New creates a Notifier backed by channels.
func New(channels ChannelGetter) *Notifier {
	return &Notifier{
		channels: channels,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Notify delivers payload via channelID, refusing silently if the channel
// belongs to a different tenant than sensorOwnerID. Delivery errors are
// logged, never returned — a failed notification must not abort the
// sensor cycle that triggered it.
func (n *Notifier) Notify(ctx context.Context, sensorOwnerID, channelID string, payload Payload) {
	channel, err := n.channels.GetNotificationChannel(channelID)
	if err != nil {
		log.Printf("notify: channel %s lookup failed: %v", channelID, err)
		return
	}
	if channel.OwnerID != sensorOwnerID {
		return // cross-tenant channel reference — refuse silently
	}

	switch channel.Kind {
	case model.ChannelWebhook:
		n.sendWebhook(ctx, channel, payload)
	case model.ChannelTelegram:
		n.sendTelegram(ctx, channel, payload)
	default:
		log.Printf("notify: channel %s has unknown kind %q", channel.ID, channel.Kind)
	}
}

func (n *Notifier) sendWebhook(ctx context.Context, channel *model.NotificationChannel, payload Payload) {
	body, err := json.Marshal(map[string]string{"content": plainTextBlock(payload)})
	if err != nil {
		log.Printf("notify: webhook %s marshal error: %v", channel.ID, err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, channel.Config.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: webhook %s request build error: %v", channel.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("notify: webhook %s delivery failed: %v", channel.ID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify: webhook %s returned status %d", channel.ID, resp.StatusCode)
	}
}

func (n *Notifier) sendTelegram(ctx context.Context, channel *model.NotificationChannel, payload Payload) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", channel.Config.Token)
	body, err := json.Marshal(map[string]string{
		"chat_id":    channel.Config.ChatID,
		"text":       telegramHTML(payload),
		"parse_mode": "HTML",
	})
	if err != nil {
		log.Printf("notify: telegram %s marshal error: %v", channel.ID, err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: telegram %s request build error: %v", channel.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("notify: telegram %s delivery failed: %v", channel.ID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify: telegram %s returned status %d", channel.ID, resp.StatusCode)
	}
}

func plainTextBlock(p Payload) string {
	return fmt.Sprintf("Sensor: %s\nDevice: %s (%s)\n%s", p.SensorName, p.ClientName, p.IP, p.Reason)
}

// escapeHTML escapes &, < and > in s for Telegram's HTML parse mode. Order
// matters: & must be escaped first or it would double-escape the entities
// produced for < and >.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func telegramHTML(p Payload) string {
	return fmt.Sprintf(
		"<b>Sensor:</b> %s\n<b>Device:</b> %s (%s)\n%s",
		escapeHTML(p.SensorName), escapeHTML(p.ClientName), escapeHTML(p.IP), escapeHTML(p.Reason),
	)
}
