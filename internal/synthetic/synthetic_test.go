package synthetic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/questions"
)

func TestGeneratePerTier(t *testing.T) {
	for _, level := range []questions.QualityLevel{questions.QualityLow, questions.QualityMedium, questions.QualityHigh} {
		t.Run(string(level), func(t *testing.T) {
			mock := llm.NewMockProviderWithContent("  Talk to your lawyer first.  ")
			g := NewGenerator(mock, "gen-model")

			out, err := g.Generate(context.Background(), Request{
				Title:        "Should we incorporate in Delaware?",
				Body:         "We are a two-person team.",
				Tags:         []string{"legal", "incorporation"},
				QualityLevel: level,
			})
			require.NoError(t, err)
			assert.Equal(t, "Talk to your lawyer first.", out)

			req := mock.LastCall()
			assert.Equal(t, "gen-model", req.Model)
			assert.Equal(t, tiers[level].maxTokens, req.MaxTokens)
			assert.Contains(t, req.Messages[1].Content, tiers[level].instruction)
			assert.Contains(t, req.Messages[1].Content, "legal, incorporation")
		})
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	mock := llm.NewMockProvider("mock")
	g := NewGenerator(mock, "m")

	_, err := g.Generate(context.Background(), Request{Title: "t", QualityLevel: "stellar"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = g.Generate(context.Background(), Request{QualityLevel: questions.QualityLow})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, mock.CallCount())
}

func TestGenerateProviderFailure(t *testing.T) {
	mock := llm.NewMockProvider("mock")
	mock.Err = errors.New("boom")
	_, err := NewGenerator(mock, "m").Generate(context.Background(), Request{Title: "t", QualityLevel: questions.QualityHigh})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	mock = llm.NewMockProviderWithContent("   ")
	_, err = NewGenerator(mock, "m").Generate(context.Background(), Request{Title: "t", QualityLevel: questions.QualityHigh})
	assert.ErrorContains(t, err, "empty completion")
}
