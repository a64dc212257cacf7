// Package sweep periodically re-matches open questions and rolls expert
// quotas over to a new week.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/progress"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
)

// Matcher re-matches one question.
type Matcher interface {
	MatchQuestion(ctx context.Context, questionID string) ([]matching.QuestionMatch, error)
}

// Result summarizes one sweep.
type Result struct {
	Questions  int   `json:"questions"`
	Matched    int   `json:"matched"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	WeeksReset int64 `json:"weeks_reset"`
}

// Sweeper runs sweeps.
type Sweeper struct {
	questions *questions.Store
	experts   *experts.Store
	matcher   Matcher
	telemetry *telemetry.Provider
	log       logger.Logger
	limit     int
	now       func() time.Time

	mu     sync.Mutex
	cursor int
}

// New creates a Sweeper. limit caps the questions visited per run, and
// successive runs page through the open questions so every one is visited
// in turn. Zero visits all of them each run.
func New(qs *questions.Store, directory *experts.Store, matcher Matcher, tel *telemetry.Provider, log logger.Logger, limit int) *Sweeper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		questions: qs,
		experts:   directory,
		matcher:   matcher,
		telemetry: tel,
		log:       log,
		limit:     limit,
		now:       time.Now,
	}
}

// Run resets stale weekly quotas, then re-matches the next page of open
// questions, oldest first. A failure on one question is logged and counted; the
// sweep moves on. Questions closed between listing and matching are
// skipped.
func (s *Sweeper) Run(ctx context.Context, report progress.Reporter) (res *Result, err error) {
	if report == nil {
		report = progress.Nop{}
	}
	res = &Result{}
	if err = ctx.Err(); err != nil {
		return res, err
	}
	defer func() { s.telemetry.RecordSweep(res.Questions, err) }()

	now := s.now()
	res.WeeksReset, err = s.experts.ResetStaleWeeks(ctx, now)
	if err != nil {
		return res, fmt.Errorf("resetting weekly quotas: %w", err)
	}

	open, err := s.nextPage(ctx, now)
	if err != nil {
		return res, fmt.Errorf("listing open questions: %w", err)
	}
	res.Questions = len(open)

	report.Start(len(open))
	defer report.Finish()
	for i, q := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := s.matcher.MatchQuestion(ctx, q.ID)
		switch {
		case err == nil:
			res.Matched++
		case errors.Is(err, apperr.ErrQuestionClosed):
			res.Skipped++
		default:
			res.Failed++
			s.log.Warn("sweep: matching question failed",
				logger.String("question_id", q.ID),
				logger.Error(err),
			)
		}
		report.Update(i+1, q.ID)
	}

	s.log.Info("sweep finished",
		logger.Int("questions", res.Questions),
		logger.Int("matched", res.Matched),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed),
		logger.Int64("weeks_reset", res.WeeksReset),
	)
	return res, nil
}

// nextPage lists the open questions after the cursor and advances it. A
// short page wraps the cursor back to the oldest question.
func (s *Sweeper) nextPage(ctx context.Context, now time.Time) ([]questions.Question, error) {
	if s.limit <= 0 {
		return s.questions.ListActive(ctx, questions.ActiveFilter{Now: now})
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f := questions.ActiveFilter{Now: now, Limit: s.limit, Offset: s.cursor}
	open, err := s.questions.ListActive(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 && s.cursor > 0 {
		// Questions closed since the last run shrank the set below the cursor.
		f.Offset = 0
		if open, err = s.questions.ListActive(ctx, f); err != nil {
			return nil, err
		}
	}
	s.cursor = f.Offset + len(open)
	if len(open) < s.limit {
		s.cursor = 0
	}
	return open, nil
}

// Scheduler runs a Sweeper on a cron schedule. A run still in progress
// when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	log     logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler parses schedule, a standard five-field cron expression, and
// registers the sweep.
func NewScheduler(sweeper *Sweeper, schedule string, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if _, err := s.sweeper.Run(s.ctx, nil); err != nil {
		s.log.Error("sweep failed", logger.Error(err))
	}
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("sweep scheduler started")
}

// Stop cancels a running sweep and waits for it to return or for ctx to
// end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
