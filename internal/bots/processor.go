package bots

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/routing"
)

const helpText = `Commands:
- ask <title> | <details>: ask your network a question
- feed: open questions you can see
- matches: questions you were matched to
- answer <question id> <text>: respond to a question
- forward <question id> <user id> [reason]: pass a question on
- close <question id>: close one of your questions`

// Processor executes chat commands against the routing service. The chat
// user id is the acting network user.
type Processor struct {
	routing  *routing.Service
	feedSize int
	log      logger.Logger
}

// NewProcessor creates a new message processor. feedSize bounds the feed
// and matches listings.
func NewProcessor(svc *routing.Service, feedSize int, log logger.Logger) *Processor {
	if feedSize <= 0 {
		feedSize = 5
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{routing: svc, feedSize: feedSize, log: log}
}

// HandleMessage detects the command from the first word of the message.
// Service errors are answered in the channel rather than returned, so the
// platform always receives a reply.
func (p *Processor) HandleMessage(ctx context.Context, msg IncomingMessage) (*OutgoingMessage, error) {
	reply := func(text string) *OutgoingMessage {
		return &OutgoingMessage{ChannelID: msg.ChannelID, ThreadID: msg.ThreadID, Text: text}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return reply("I received an empty message. Say `help` for the commands."), nil
	}
	if msg.UserID == "" {
		return reply("I could not tell who sent this message."), nil
	}
	if p.routing == nil {
		return reply("Question routing is not configured."), nil
	}

	cmd, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	var out string
	var err error
	switch strings.ToLower(cmd) {
	case "ask", "?":
		out, err = p.handleAsk(ctx, msg.UserID, rest)
	case "feed", "questions":
		out, err = p.handleFeed(ctx, msg.UserID)
	case "matches":
		out, err = p.handleMatches(ctx, msg.UserID)
	case "answer":
		out, err = p.handleAnswer(ctx, msg.UserID, rest)
	case "forward":
		out, err = p.handleForward(ctx, msg.UserID, rest)
	case "close":
		out, err = p.handleClose(ctx, msg.UserID, rest)
	default:
		out = helpText
	}
	if err != nil {
		return reply(p.describe(msg, err)), nil
	}
	return reply(out), nil
}

// describe renders a service error for the chat user. Infrastructure
// failures are logged and reported without detail.
func (p *Processor) describe(msg IncomingMessage, err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotAuthorized, apperr.KindQuestionClosed, apperr.KindNotFound:
		return "Sorry, " + err.Error()
	}
	p.log.Error("bot command failed",
		logger.String("platform", string(msg.Platform)),
		logger.String("user_id", msg.UserID),
		logger.Error(err),
	)
	return "Something went wrong on our side. Please try again later."
}

func (p *Processor) handleAsk(ctx context.Context, userID, rest string) (string, error) {
	title, body, ok := strings.Cut(rest, "|")
	if !ok {
		title, body, ok = strings.Cut(rest, "\n")
	}
	if !ok {
		return "Usage: ask <title> | <details>", nil
	}
	sub, err := p.routing.Submit(ctx, questions.NewQuestion{
		AskerID: userID,
		Title:   strings.TrimSpace(title),
		Body:    strings.TrimSpace(body),
	})
	if err != nil {
		return "", err
	}
	notified := 0
	for _, m := range sub.Matches {
		if m.IsNotified {
			notified++
		}
	}
	return fmt.Sprintf("Question %s posted. %d expert(s) matched, %d notified.",
		sub.Question.ID, len(sub.Matches), notified), nil
}

func (p *Processor) handleFeed(ctx context.Context, userID string) (string, error) {
	qs, err := p.routing.Feed(ctx, userID, p.feedSize)
	if err != nil {
		return "", err
	}
	if len(qs) == 0 {
		return "No open questions are visible to you right now.", nil
	}
	var b strings.Builder
	b.WriteString("Open questions:\n")
	for i, q := range qs {
		fmt.Fprintf(&b, "%d. [%s] %s (%d responses)\n", i+1, q.ID, q.Title, q.ResponseCount)
	}
	return b.String(), nil
}

func (p *Processor) handleMatches(ctx context.Context, userID string) (string, error) {
	ms, err := p.routing.ExpertMatches(ctx, userID, p.feedSize)
	if err != nil {
		return "", err
	}
	return formatMatches(ms), nil
}

func (p *Processor) handleAnswer(ctx context.Context, userID, rest string) (string, error) {
	questionID, content, _ := strings.Cut(rest, " ")
	content = strings.TrimSpace(content)
	if questionID == "" || content == "" {
		return "Usage: answer <question id> <text>", nil
	}
	resp, err := p.routing.Lifecycle.Respond(ctx, lifecycle.RespondInput{
		QuestionID:  questionID,
		ResponderID: userID,
		Content:     content,
	})
	if err != nil {
		return "", err
	}
	if resp.IsAccepted {
		return fmt.Sprintf("Thanks! Your response %s answered the question.", resp.ID), nil
	}
	return fmt.Sprintf("Thanks! Response %s recorded.", resp.ID), nil
}

func (p *Processor) handleForward(ctx context.Context, userID, rest string) (string, error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "Usage: forward <question id> <user id> [reason]", nil
	}
	reason := strings.Join(fields[2:], " ")
	rec, err := p.routing.Forward(ctx, fields[0], userID, fields[1], reason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Forwarded %s to %s.", rec.QuestionID, rec.ForwardedTo), nil
}

func (p *Processor) handleClose(ctx context.Context, userID, rest string) (string, error) {
	questionID := strings.TrimSpace(rest)
	if questionID == "" {
		return "Usage: close <question id>", nil
	}
	q, err := p.routing.Lifecycle.Close(ctx, questionID, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Question %s is now %s.", q.ID, q.Status), nil
}

func formatMatches(ms []matching.QuestionMatch) string {
	if len(ms) == 0 {
		return "You have no matched questions."
	}
	var b strings.Builder
	b.WriteString("Your matched questions:\n")
	for i, m := range ms {
		fmt.Fprintf(&b, "%d. [%s] score %.2f\n", i+1, m.QuestionID, m.MatchScore)
	}
	return b.String()
}
