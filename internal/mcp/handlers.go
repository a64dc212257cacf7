package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

const defaultLimit = 20

// required reads the named string arguments, in order. The error result is
// non-nil when one is missing or blank.
func required(request mcp.CallToolRequest, names ...string) ([]string, *mcp.CallToolResult) {
	out := make([]string, len(names))
	for i, name := range names {
		v, err := request.RequireString(name)
		if err != nil || strings.TrimSpace(v) == "" {
			return nil, mcp.NewToolResultError("missing required parameter: " + name)
		}
		out[i] = v
	}
	return out, nil
}

// jsonResult renders v as indented JSON, which agents parse reliably.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// failed turns a service error into a tool error the agent can read.
func failed(action string, err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err)), nil
}

func (s *Server) handleSubmitQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "title", "body")
	if errResult != nil {
		return errResult, nil
	}
	sub, err := s.routing.Submit(ctx, questions.NewQuestion{
		AskerID:         args[0],
		Title:           args[1],
		Body:            args[2],
		VisibilityLevel: visibility.Level(request.GetString("visibility_level", "")),
		IsAnonymous:     request.GetBool("is_anonymous", false),
		IsSensitive:     request.GetBool("is_sensitive", false),
	})
	if err != nil {
		return failed("submit", err)
	}
	if sub.Matches == nil {
		sub.Matches = []matching.QuestionMatch{}
	}
	return jsonResult(sub)
}

func (s *Server) handleViewQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id")
	if errResult != nil {
		return errResult, nil
	}
	q, err := s.routing.Lifecycle.View(ctx, args[1], args[0])
	if err != nil {
		return failed("view", err)
	}
	return jsonResult(q)
}

func (s *Server) handleQuestionFeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id")
	if errResult != nil {
		return errResult, nil
	}
	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	qs, err := s.routing.Feed(ctx, args[0], limit)
	if err != nil {
		return failed("feed", err)
	}
	if len(qs) == 0 {
		return mcp.NewToolResultText("No open questions are visible to you right now."), nil
	}
	return jsonResult(qs)
}

func (s *Server) handleRespond(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id", "content")
	if errResult != nil {
		return errResult, nil
	}
	resp, err := s.routing.Lifecycle.Respond(ctx, lifecycle.RespondInput{
		QuestionID:   args[1],
		ResponderID:  args[0],
		Content:      args[2],
		ResponseType: questions.AnswerType(request.GetString("response_type", "")),
	})
	if err != nil {
		return failed("respond", err)
	}
	return jsonResult(resp)
}

func (s *Server) handleListResponses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id")
	if errResult != nil {
		return errResult, nil
	}
	rs, err := s.routing.Lifecycle.ListResponses(ctx, args[1], args[0])
	if err != nil {
		return failed("list responses", err)
	}
	return jsonResult(rs)
}

func (s *Server) handleVoteResponse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "response_id")
	if errResult != nil {
		return errResult, nil
	}
	helpful, err := request.RequireBool("helpful")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: helpful"), nil
	}
	resp, err := s.routing.Lifecycle.Vote(ctx, args[1], args[0], helpful)
	if err != nil {
		return failed("vote", err)
	}
	return jsonResult(resp)
}

func (s *Server) handleAcceptResponse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "response_id")
	if errResult != nil {
		return errResult, nil
	}
	resp, err := s.routing.Lifecycle.Accept(ctx, args[1], args[0])
	if err != nil {
		return failed("accept", err)
	}
	return jsonResult(resp)
}

func (s *Server) handleForwardQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id", "to")
	if errResult != nil {
		return errResult, nil
	}
	rec, err := s.routing.Forward(ctx, args[1], args[0], args[2], request.GetString("reason", ""))
	if err != nil {
		return failed("forward", err)
	}
	return jsonResult(rec)
}

func (s *Server) handleQuestionMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id")
	if errResult != nil {
		return errResult, nil
	}
	ms, err := s.routing.ListMatches(ctx, args[1], args[0])
	if err != nil {
		return failed("list matches", err)
	}
	return mcp.NewToolResultText(formatMatches(ms)), nil
}

func (s *Server) handleMyMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id")
	if errResult != nil {
		return errResult, nil
	}
	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	ms, err := s.routing.ExpertMatches(ctx, args[0], limit)
	if err != nil {
		return failed("list matches", err)
	}
	return mcp.NewToolResultText(formatMatches(ms)), nil
}

func (s *Server) handleCloseQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id")
	if errResult != nil {
		return errResult, nil
	}
	q, err := s.routing.Lifecycle.Close(ctx, args[1], args[0])
	if err != nil {
		return failed("close", err)
	}
	return jsonResult(q)
}

func (s *Server) handleSimilarQuestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := required(request, "user_id", "question_id")
	if errResult != nil {
		return errResult, nil
	}
	similar, err := s.routing.Similar(ctx, args[1], args[0], request.GetInt("limit", 5))
	if err != nil {
		return failed("similar questions", err)
	}
	if len(similar) == 0 {
		return mcp.NewToolResultText("No similar questions found."), nil
	}
	return jsonResult(similar)
}

// formatMatches renders matches as a compact ranked list.
func formatMatches(ms []matching.QuestionMatch) string {
	if len(ms) == 0 {
		return "No matches."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d match(es):\n", len(ms)))
	for i, m := range ms {
		degree := "unreachable"
		if m.NetworkDegree != visibility.Unreachable {
			degree = fmt.Sprintf("degree %d", m.NetworkDegree)
		}
		notified := ""
		if m.IsNotified {
			notified = ", notified"
		}
		sb.WriteString(fmt.Sprintf("%d. question %s / expert %s: score %.3f (%s%s)\n",
			i+1, m.QuestionID, m.ExpertID, m.MatchScore, degree, notified))
		c := m.Components
		sb.WriteString(fmt.Sprintf("   tags %.2f, expertise %.2f, history %.2f, activity %.2f, distance %.2f\n",
			c.TagRelevance, c.ExpertiseConfidence, c.ResponseHistory, c.Activity, c.NetworkDistance))
	}
	return sb.String()
}
