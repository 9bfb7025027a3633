package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/chunk_transfer/internal/storage"
)

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// Nop discards notifications. It is used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// New returns a DiscordNotifier for webhookURL, or Nop when it is empty.
func New(webhookURL string, client *http.Client) Notifier {
	if webhookURL == "" {
		return Nop{}
	}

	return &DiscordNotifier{WebhookURL: webhookURL, Client: client}
}

type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// FormatRecord renders a finished transfer as a one-line chat message.
func FormatRecord(rec storage.TransferRecord) string {
	took := rec.Duration().Round(time.Second)

	if rec.Status == storage.StatusSucceeded {
		return fmt.Sprintf("✅ %s of %s finished (%s in %s)", rec.Direction, rec.Name, humanize.IBytes(uint64(max(rec.Size, 0))), took)
	}

	return fmt.Sprintf("❌ %s of %s failed after %s: %s", rec.Direction, rec.Name, took, rec.Reason)
}
