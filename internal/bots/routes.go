package bots

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the webhook of each configured platform. A nil
// handler leaves its platform unmounted.
func RegisterRoutes(r chi.Router, slack *SlackHandler, teams *TeamsHandler) {
	r.Route("/api/bots", func(r chi.Router) {
		if slack != nil {
			r.Post("/slack/events", slack.HandleEvent)
		}
		if teams != nil {
			r.Post("/teams/activity", teams.HandleActivity)
		}
	})
}
