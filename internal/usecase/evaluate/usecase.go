// Package evaluate runs a question set through the query pipeline and
// summarizes answer quality.
package evaluate

import (
	"context"
	"sort"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
)

type ItemResult struct {
	Question            string           `json:"question"`
	Category            string           `json:"category"`
	Difficulty          string           `json:"difficulty,omitempty"`
	ExpectedAnswer      string           `json:"expected_answer"`
	GeneratedAnswer     string           `json:"generated_answer"`
	Success             bool             `json:"success"`
	ErrorKind           entity.ErrorKind `json:"error_kind,omitempty"`
	InsufficientContext bool             `json:"insufficient_context"`
	Sources             []string         `json:"sources"`
	NumCitations        int              `json:"num_citations"`
	KeywordRecall       float64          `json:"keyword_recall"`
	ElapsedSeconds      float64          `json:"elapsed_seconds"`
}

type CategoryStats struct {
	Category       string  `json:"category"`
	Questions      int     `json:"questions"`
	Succeeded      int     `json:"succeeded"`
	Insufficient   int     `json:"insufficient_context"`
	AvgRecall      float64 `json:"avg_keyword_recall"`
	AvgElapsedSecs float64 `json:"avg_elapsed_seconds"`
}

type Report struct {
	Model          string          `json:"model,omitempty"`
	TotalQuestions int             `json:"total_questions"`
	Succeeded      int             `json:"succeeded"`
	Insufficient   int             `json:"insufficient_context"`
	AvgRecall      float64         `json:"avg_keyword_recall"`
	AvgCitations   float64         `json:"avg_citations"`
	ElapsedSeconds float64         `json:"elapsed_time"`
	AvgElapsedSecs float64         `json:"avg_time"`
	Categories     []CategoryStats `json:"categories"`
	Results        []ItemResult    `json:"results"`
}

type Usecase struct {
	answerer Answerer
	runner   Runner
	identity entity.Identity
	topK     int
	now      func() time.Time
}

// NewUsecase asks every question as identity.
func NewUsecase(answerer Answerer, runner Runner, identity entity.Identity, topK int) *Usecase {
	return &Usecase{answerer: answerer, runner: runner, identity: identity, topK: topK, now: time.Now}
}

// Run answers items concurrently and aggregates the results. A sample of
// zero or less evaluates every item. Failed queries are part of the report.
func (uc *Usecase) Run(ctx context.Context, items []Item, sample int) (*Report, error) {
	if sample > 0 && sample < len(items) {
		items = items[:sample]
	}
	start := uc.now()
	results := make([]ItemResult, len(items))
	models := make([]string, len(items))

	errs := uc.runner.Run(ctx, len(items), func(ctx context.Context, i int) error {
		it := items[i]
		answer, err := uc.answerer.AnswerQuery(ctx, entity.Query{
			Question: it.Question,
			Identity: uc.identity,
			TopK:     uc.topK,
		})
		results[i] = itemResult(it, answer)
		if answer != nil {
			models[i] = answer.Model
		}
		if err != nil {
			ctxzap.Debug(ctx, "evaluation question failed", zap.Int("item", i), zap.Error(err))
		}
		return nil
	})
	for i, err := range errs {
		if err != nil {
			results[i] = itemResult(items[i], nil)
			results[i].ErrorKind = entity.KindOf(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := aggregate(results, uc.now().Sub(start))
	for _, m := range models {
		if m != "" {
			report.Model = m
			break
		}
	}

	ctxzap.Info(ctx, "evaluation finished",
		zap.Int("questions", report.TotalQuestions),
		zap.Int("succeeded", report.Succeeded),
		zap.Float64("avg_keyword_recall", report.AvgRecall),
	)
	return report, nil
}

func itemResult(it Item, answer *entity.Answer) ItemResult {
	r := ItemResult{
		Question:       it.Question,
		Category:       it.category(),
		Difficulty:     it.Difficulty,
		ExpectedAnswer: it.Expected(),
		Sources:        []string{},
	}
	if answer == nil {
		r.ErrorKind = entity.ErrorKindInternal
		return r
	}
	r.GeneratedAnswer = answer.Text
	r.Success = answer.Success
	r.ErrorKind = answer.ErrorKind
	r.InsufficientContext = answer.InsufficientContext
	r.Sources = answer.CitedDocumentIDs()
	r.NumCitations = len(answer.Citations)
	r.ElapsedSeconds = answer.ElapsedSeconds
	if answer.Success {
		r.KeywordRecall = KeywordRecall(r.ExpectedAnswer, answer.Text)
	}
	return r
}

func aggregate(results []ItemResult, elapsed time.Duration) *Report {
	report := &Report{
		TotalQuestions: len(results),
		ElapsedSeconds: elapsed.Seconds(),
		Results:        results,
		Categories:     []CategoryStats{},
	}
	byCategory := make(map[string]*CategoryStats)
	var recall, citations, itemSeconds float64

	for _, r := range results {
		cs, ok := byCategory[r.Category]
		if !ok {
			cs = &CategoryStats{Category: r.Category}
			byCategory[r.Category] = cs
		}
		cs.Questions++
		cs.AvgRecall += r.KeywordRecall
		cs.AvgElapsedSecs += r.ElapsedSeconds
		if r.Success {
			cs.Succeeded++
			report.Succeeded++
		}
		if r.InsufficientContext {
			cs.Insufficient++
			report.Insufficient++
		}
		recall += r.KeywordRecall
		citations += float64(r.NumCitations)
		itemSeconds += r.ElapsedSeconds
	}

	if n := float64(len(results)); n > 0 {
		report.AvgRecall = recall / n
		report.AvgCitations = citations / n
		report.AvgElapsedSecs = itemSeconds / n
	}
	for _, cs := range byCategory {
		cs.AvgRecall /= float64(cs.Questions)
		cs.AvgElapsedSecs /= float64(cs.Questions)
		report.Categories = append(report.Categories, *cs)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].Category < report.Categories[j].Category
	})
	return report
}
