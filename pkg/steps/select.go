package steps

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

var (
	ErrNoCandidates   = errors.New("no evaluation result to select from")
	ErrMetricNotFound = errors.New("metric not found in evaluation result")
)

// Selector picks the best of several evaluation results on a single metric.
type Selector struct {
	// Metric is the dataset score compared. Empty means the first score of the first output.
	Metric string
	Goal   string
}

// NewSelector uses the first algorithm declaring a metric.
func NewSelector(algorithms []config.Algorithm) Selector {
	for _, alg := range algorithms {
		if alg.Metric != "" {
			return Selector{Metric: alg.Metric, Goal: alg.Goal}
		}
	}

	return Selector{Goal: config.GoalMaximize}
}

func (s Selector) metric(candidate provider.EvaluationResult) string {
	if s.Metric != "" {
		return s.Metric
	}
	if len(candidate.EvalResult) > 0 && len(candidate.EvalResult[0].DatasetScores) > 0 {
		return candidate.EvalResult[0].DatasetScores[0].Name
	}

	return ""
}

func score(candidate provider.EvaluationResult, metric string) (float64, error) {
	for _, out := range candidate.EvalResult {
		if value, ok := out.Score(metric); ok {
			return value, nil
		}
	}

	return 0, errors.Wrapf(ErrMetricNotFound, "%q for %s", metric, candidate.ModelConfig.StepName())
}

func (s Selector) better(a, b float64) bool {
	if s.Goal == config.GoalMinimize {
		return a < b
	}

	return a > b
}

// Select returns the candidate with the best score, unchanged. Ties keep the earliest candidate.
func (s Selector) Select(_ context.Context, candidates ...provider.EvaluationResult) (provider.EvaluationResult, error) {
	if len(candidates) == 0 {
		return provider.EvaluationResult{}, ErrNoCandidates
	}

	metric := s.metric(candidates[0])
	best := 0
	bestScore, err := score(candidates[0], metric)
	if err != nil {
		return provider.EvaluationResult{}, err
	}

	for i, candidate := range candidates[1:] {
		value, err := score(candidate, metric)
		if err != nil {
			return provider.EvaluationResult{}, err
		}
		if s.better(value, bestScore) {
			best, bestScore = i+1, value
		}
	}

	logrus.WithFields(logrus.Fields{
		"step":     "model_selection",
		"model_id": candidates[best].ModelConfig.ModelID,
		"metric":   metric,
	}).Infof("best model scored %v", bestScore)

	return candidates[best], nil
}
