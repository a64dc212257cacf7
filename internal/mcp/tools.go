package mcp

import "github.com/mark3labs/mcp-go/mcp"

func userParam() mcp.ToolOption {
	return mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user the agent acts for"),
	)
}

func questionParam() mcp.ToolOption {
	return mcp.WithString("question_id",
		mcp.Required(),
		mcp.Description("Question identifier"),
	)
}

var submitQuestionTool = mcp.NewTool("submit_question",
	mcp.WithDescription("Ask the network a question. It is classified, matched to experts within the chosen reach, and the best matches are notified."),
	userParam(),
	mcp.WithString("title", mcp.Required(), mcp.Description("Short question title")),
	mcp.WithString("body", mcp.Required(), mcp.Description("Full question text")),
	mcp.WithString("visibility_level",
		mcp.Description("How far into the network the question is shown (default secondDegree)"),
		mcp.Enum("firstDegree", "secondDegree", "thirdDegree", "public"),
	),
	mcp.WithBoolean("is_anonymous", mcp.Description("Hide the asker from everyone else")),
	mcp.WithBoolean("is_sensitive", mcp.Description("Flag the question as sensitive")),
)

var viewQuestionTool = mcp.NewTool("view_question",
	mcp.WithDescription("Read a question the user is allowed to see."),
	userParam(),
	questionParam(),
)

var questionFeedTool = mcp.NewTool("question_feed",
	mcp.WithDescription("List open questions visible to the user, oldest first."),
	userParam(),
	mcp.WithNumber("limit", mcp.Description("Maximum number of questions (default 20)")),
)

var respondTool = mcp.NewTool("respond_to_question",
	mcp.WithDescription("Answer an open question."),
	userParam(),
	questionParam(),
	mcp.WithString("content", mcp.Required(), mcp.Description("Answer text")),
	mcp.WithString("response_type",
		mcp.Description("Kind of answer; defaults to what the question expects"),
		mcp.Enum("tactical", "strategic", "resource", "introduction", "brainstorming"),
	),
)

var listResponsesTool = mcp.NewTool("list_responses",
	mcp.WithDescription("List the responses to a question that the user may read."),
	userParam(),
	questionParam(),
)

var voteResponseTool = mcp.NewTool("vote_response",
	mcp.WithDescription("Vote a response helpful or unhelpful. A second vote by the same user replaces the first."),
	userParam(),
	mcp.WithString("response_id", mcp.Required(), mcp.Description("Response identifier")),
	mcp.WithBoolean("helpful", mcp.Required(), mcp.Description("True for helpful")),
)

var acceptResponseTool = mcp.NewTool("accept_response",
	mcp.WithDescription("As the asker, accept a response and mark the question answered."),
	userParam(),
	mcp.WithString("response_id", mcp.Required(), mcp.Description("Response identifier")),
)

var forwardQuestionTool = mcp.NewTool("forward_question",
	mcp.WithDescription("Forward a question to someone outside its visibility reach."),
	userParam(),
	questionParam(),
	mcp.WithString("to", mcp.Required(), mcp.Description("Recipient user id")),
	mcp.WithString("reason", mcp.Description("Why the recipient can help")),
)

var questionMatchesTool = mcp.NewTool("question_matches",
	mcp.WithDescription("As the asker, list the experts matched to a question with their scores."),
	userParam(),
	questionParam(),
)

var myMatchesTool = mcp.NewTool("my_matches",
	mcp.WithDescription("List the questions the user was matched to as an expert, best first."),
	userParam(),
	mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 20)")),
)

var closeQuestionTool = mcp.NewTool("close_question",
	mcp.WithDescription("As the asker, close a question to further responses."),
	userParam(),
	questionParam(),
)

var similarQuestionsTool = mcp.NewTool("similar_questions",
	mcp.WithDescription("Find earlier questions close to this one that the user can see, to reuse their answers."),
	userParam(),
	questionParam(),
	mcp.WithNumber("limit", mcp.Description("Maximum number of questions (default 5)")),
)
