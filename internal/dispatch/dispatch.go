package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/station-matching/internal/models"
)

// Notifier delivers a single notification. Callers treat failures as
// best-effort and never roll back on them.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// HTTPNotifier posts notifications to the notification service.
type HTTPNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewHTTPNotifier(endpoint, key string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: timeout}}
}

func (d *HTTPNotifier) Send(ctx context.Context, n models.Notification) error {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: 3 * time.Second}
	}
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Key != "" {
		req.Header.Set("Authorization", "Bearer "+d.Key)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", n.ToID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send notification to %s: status %d", n.ToID, resp.StatusCode)
	}
	return nil
}
