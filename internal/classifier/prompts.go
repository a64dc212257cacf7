package classifier

import (
	"fmt"

	"github.com/ziadkadry99/expertroute/internal/llm"
)

const systemPrompt = `You classify questions posted to a peer-expertise network so they can be routed to people who know the topic.
Always respond with a single JSON object and nothing else.`

const userPromptTemplate = `Classify the question below.

Return JSON with exactly these fields:
{
  "primaryTags": ["1-3 lower-case topic tags central to the question"],
  "secondaryTags": ["0-5 lower-case tags for related or supporting topics"],
  "expectedAnswerType": "one of: tactical, strategic, resource, introduction, brainstorming",
  "urgencyLevel": "one of: low, medium, high, urgent",
  "summary": "one sentence restating what the asker needs",
  "confidence": 0.0
}

confidence is your certainty in the classification, between 0 and 1.

Title: %s

Body:
%s`

func buildMessages(title, body string) []llm.Message {
	return llm.Prompt(systemPrompt, fmt.Sprintf(userPromptTemplate, title, body))
}
