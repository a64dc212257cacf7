package routing

import (
	"context"
	"errors"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/progress"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/vectordb"
)

// SimilarQuestion is a related question the viewer is allowed to see.
type SimilarQuestion struct {
	Question   *questions.Question `json:"question"`
	Similarity float32             `json:"similarity"`
}

func questionText(q *questions.Question) string {
	return q.Title + "\n\n" + q.Body
}

func questionDocument(q *questions.Question) vectordb.Document {
	return vectordb.Document{
		ID:      q.ID,
		Content: questionText(q),
		Metadata: vectordb.DocumentMetadata{
			AskerID:         q.AskerID,
			Tags:            q.Tags(),
			VisibilityLevel: string(q.VisibilityLevel),
			CreatedAt:       q.CreatedAt,
		},
	}
}

// index adds q to the similarity index. Failures are logged; a question
// missing from the index only affects suggestions.
func (s *Service) index(ctx context.Context, q *questions.Question) {
	if s.Index == nil {
		return
	}
	if err := s.Index.AddDocuments(ctx, []vectordb.Document{questionDocument(q)}); err != nil {
		s.Logger.Warn("indexing question for similarity search",
			logger.String("question_id", q.ID),
			logger.Error(err),
		)
	}
}

// Similar returns up to limit questions whose text is close to the given
// question, best first. Only questions viewerID can see are returned, with
// anonymous askers redacted. Without an index the result is empty.
func (s *Service) Similar(ctx context.Context, questionID, viewerID string, limit int) ([]SimilarQuestion, error) {
	q, err := s.Lifecycle.Authorize(ctx, questionID, viewerID)
	if err != nil {
		return nil, err
	}
	out := []SimilarQuestion{}
	if s.Index == nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 5
	}

	// Over-fetch since some hits are the question itself or out of reach.
	results, err := s.Index.Search(ctx, questionText(q), limit*3+1)
	if err != nil {
		return nil, apperr.StoreUnavailable("routing.Similar", err)
	}
	for _, r := range results {
		if r.Document.ID == questionID || r.Similarity < s.MinSimilarity {
			continue
		}
		other, err := s.Lifecycle.Authorize(ctx, r.Document.ID, viewerID)
		switch {
		case errors.Is(err, apperr.ErrNotAuthorized), errors.Is(err, apperr.ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		out = append(out, SimilarQuestion{Question: other, Similarity: r.Similarity})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

const reindexBatch = 50

// Reindex adds every open question to the similarity index, in batches,
// and returns how many were indexed.
func (s *Service) Reindex(ctx context.Context, report progress.Reporter) (int, error) {
	if s.Index == nil {
		return 0, apperr.Validation("routing.Reindex", "similar-question search is not enabled")
	}
	if report == nil {
		report = progress.Nop{}
	}
	active, err := s.Questions.ListActive(ctx, questions.ActiveFilter{Now: s.now()})
	if err != nil {
		return 0, err
	}

	report.Start(len(active))
	defer report.Finish()
	for start := 0; start < len(active); start += reindexBatch {
		end := min(start+reindexBatch, len(active))
		docs := make([]vectordb.Document, 0, end-start)
		for i := start; i < end; i++ {
			docs = append(docs, questionDocument(&active[i]))
		}
		if err := s.Index.AddDocuments(ctx, docs); err != nil {
			return start, apperr.StoreUnavailable("routing.Reindex", err)
		}
		report.Update(end, active[end-1].ID)
	}
	return len(active), nil
}
