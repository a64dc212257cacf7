package bots

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// maxSlackSkew is how far a request timestamp may drift from the local
// clock before the request is treated as a replay.
const maxSlackSkew = 5 * time.Minute

// SlackHandler handles incoming Slack webhook events.
type SlackHandler struct {
	gateway       *Gateway
	signingSecret string
	now           func() time.Time
}

// NewSlackHandler creates a new Slack event handler. An empty signing
// secret disables request verification.
func NewSlackHandler(gateway *Gateway, signingSecret string) *SlackHandler {
	return &SlackHandler{
		gateway:       gateway,
		signingSecret: signingSecret,
		now:           time.Now,
	}
}

type slackEvent struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Event     slackInnerEvent `json:"event"`
}

type slackInnerEvent struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	BotID    string `json:"bot_id"`
}

var mentionPrefix = regexp.MustCompile(`^\s*<@[A-Z0-9]+>\s*`)

// HandleEvent handles incoming Slack events (HTTP POST).
func (h *SlackHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if h.signingSecret != "" && !h.verifySignature(r, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event slackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "url_verification":
		writeJSON(w, map[string]string{"challenge": event.Challenge})

	case "event_callback":
		// Skip bot messages to avoid loops.
		if event.Event.BotID != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if event.Event.Type != "message" && event.Event.Type != "app_mention" {
			w.WriteHeader(http.StatusOK)
			return
		}

		threadID := event.Event.ThreadTS
		if threadID == "" {
			threadID = event.Event.TS
		}
		msg := IncomingMessage{
			Platform:  PlatformSlack,
			MessageID: event.Event.TS,
			ChannelID: event.Event.Channel,
			UserID:    event.Event.User,
			Text:      mentionPrefix.ReplaceAllString(event.Event.Text, ""),
			ThreadID:  threadID,
			Timestamp: event.Event.TS,
		}

		resp, err := h.gateway.Process(r.Context(), msg)
		if err != nil {
			http.Error(w, "processing error", http.StatusInternalServerError)
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, formatSlackMessage(resp))

	default:
		w.WriteHeader(http.StatusOK)
	}
}

// verifySignature checks the v0 HMAC-SHA256 request signature and rejects
// stale timestamps.
func (h *SlackHandler) verifySignature(r *http.Request, body []byte) bool {
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return false
	}
	if !h.verifyTimestamp(timestamp) {
		return false
	}
	return hmac.Equal([]byte(signSlack(h.signingSecret, timestamp, body)), []byte(signature))
}

func (h *SlackHandler) verifyTimestamp(timestamp string) bool {
	var ts int64
	if _, err := fmt.Sscanf(timestamp, "%d", &ts); err != nil {
		return false
	}
	diff := h.now().Sub(time.Unix(ts, 0))
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxSlackSkew
}

func signSlack(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// formatSlackMessage converts "- " list items to bullets.
func formatSlackMessage(msg *OutgoingMessage) *OutgoingMessage {
	out := *msg
	if strings.Contains(out.Text, "\n") {
		lines := strings.Split(out.Text, "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, "- ") {
				lines[i] = "• " + line[2:]
			}
		}
		out.Text = strings.Join(lines, "\n")
	}
	return &out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
