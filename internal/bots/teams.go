package bots

import (
	"encoding/json"
	"net/http"
	"regexp"
)

// TeamsHandler receives Bot Framework activities and answers message
// activities inline.
type TeamsHandler struct {
	gateway *Gateway
}

func NewTeamsHandler(gateway *Gateway) *TeamsHandler {
	return &TeamsHandler{gateway: gateway}
}

type teamsActivity struct {
	Type         string       `json:"type"`
	ID           string       `json:"id"`
	Timestamp    string       `json:"timestamp"`
	Text         string       `json:"text"`
	ReplyToID    string       `json:"replyToId"`
	From         teamsAccount `json:"from"`
	Conversation teamsAccount `json:"conversation"`
}

// teamsAccount is the id/name shape Bot Framework uses for both the sender
// and the conversation.
type teamsAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type teamsReply struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	ReplyToID string `json:"replyToId"`
}

// Teams delivers channel mentions as an <at> element in the text.
var teamsMention = regexp.MustCompile(`^\s*<at>[^<]*</at>\s*`)

// HandleActivity processes message activities and acknowledges everything
// else (conversation updates, typing, reactions) with an empty 200.
func (h *TeamsHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var activity teamsActivity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if activity.Type != "message" {
		w.WriteHeader(http.StatusOK)
		return
	}

	resp, err := h.gateway.Process(r.Context(), IncomingMessage{
		Platform:  PlatformTeams,
		MessageID: activity.ID,
		ChannelID: activity.Conversation.ID,
		UserID:    activity.From.ID,
		UserName:  activity.From.Name,
		Text:      teamsMention.ReplaceAllString(activity.Text, ""),
		ThreadID:  activity.ReplyToID,
		Timestamp: activity.Timestamp,
	})
	if err != nil {
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, teamsReply{Type: "message", Text: resp.Text, ReplyToID: activity.ID})
}
