package bots

// Platform identifies the messaging platform.
type Platform string

const (
	PlatformSlack Platform = "slack"
	PlatformTeams Platform = "teams"
)

// IncomingMessage is a chat message received from any platform. UserID is
// taken as the network user id of the sender. MessageID is the platform's id
// for the message and identifies redeliveries.
type IncomingMessage struct {
	Platform  Platform
	MessageID string
	ChannelID string
	UserID    string
	UserName  string
	Text      string
	ThreadID  string
	Timestamp string
}

// OutgoingMessage is the reply sent back to the channel.
type OutgoingMessage struct {
	ChannelID string `json:"channel"`
	Text      string `json:"text"`
	ThreadID  string `json:"thread_ts,omitempty"`
}
