package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ziadkadry99/expertroute/internal/logger"
)

// Digest summarises a user's notifications over a time period.
type Digest struct {
	UserID        string         `json:"user_id"`
	Period        string         `json:"period"`
	Notifications []Notification `json:"notifications"`
	Summary       string         `json:"summary"`
}

// Dispatcher creates notifications and delivers them to webhook subscribers.
type Dispatcher struct {
	store  *Store
	client *http.Client
	log    logger.Logger
}

// NewDispatcher creates a Dispatcher backed by the given store.
func NewDispatcher(store *Store, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Dispatch persists a notification and sends it to the recipient's webhooks
// whose minimum score it meets. The notification is marked delivered once
// any webhook accepts it. Webhook failures are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if err := d.store.Create(ctx, n); err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	prefs, err := d.store.GetPreferences(ctx, n.RecipientID)
	if err != nil {
		d.log.Warn("loading notification preferences", logger.String("user_id", n.RecipientID), logger.Error(err))
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}

	delivered := false
	for _, pref := range prefs {
		if pref.WebhookURL == "" || n.Score < pref.MinScore {
			continue
		}
		if err := d.SendWebhook(ctx, pref.WebhookURL, payload); err != nil {
			d.log.Warn("delivering notification webhook",
				logger.String("notification_id", n.ID),
				logger.String("channel", pref.Channel),
				logger.Error(err),
			)
			continue
		}
		delivered = true
	}

	if delivered {
		if err := d.store.MarkDelivered(ctx, n.ID); err != nil {
			return fmt.Errorf("marking notification delivered: %w", err)
		}
		n.Delivered = true
	}
	return nil
}

// GenerateDigest builds a summary of a user's notifications since the given time.
func (d *Dispatcher) GenerateDigest(ctx context.Context, userID string, since time.Time) (*Digest, error) {
	matched, err := d.store.List(ctx, ListFilter{RecipientID: userID, Since: since})
	if err != nil {
		return nil, fmt.Errorf("listing notifications for digest: %w", err)
	}

	period := fmt.Sprintf("%s to %s",
		since.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))

	counts := map[NotificationType]int{}
	for _, n := range matched {
		counts[n.Type]++
	}
	summary := fmt.Sprintf("%d notification(s) for %s: %d matched, %d forwarded, %d responses",
		len(matched), userID, counts[TypeQuestionMatched], counts[TypeQuestionForwarded], counts[TypeResponseReceived])

	return &Digest{
		UserID:        userID,
		Period:        period,
		Notifications: matched,
		Summary:       summary,
	}, nil
}

// SendWebhook POSTs payload to the given URL.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
