package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vorpalhq/vorpal/internal/metrics"
	"github.com/vorpalhq/vorpal/internal/models"
)

// Source supplies the enabled-policy set for one evaluation. Each call
// returns consistent snapshots of each policy's rule list; an edit racing
// with an in-flight evaluation is either fully visible or fully invisible.
type Source interface {
	ListEnabledPolicies(ctx context.Context) ([]models.Policy, error)
}

// Engine evaluates every enabled policy against one system/action pair and
// aggregates the decision. It holds no mutable state across calls, so
// concurrent evaluations need no coordination.
type Engine struct {
	source    Source
	evaluator ConditionEvaluator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(source Source, evaluator ConditionEvaluator, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if evaluator == nil {
		evaluator = NewBasicEvaluator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:    source,
		evaluator: evaluator,
		logger:    logger.With("component", "policy.engine"),
		metrics:   m,
	}
}

// EvaluateAction runs the matcher and evaluator across all enabled
// policies. Policies evaluate in (created_at, id) order so repeated calls
// with an unchanged policy set produce identical output. Non-matching
// policies are skipped entirely and do not count toward policies_evaluated.
//
// A rule whose condition faults is recorded as failed at its effective
// severity with the fault captured on the rule result. Broken policies
// block rather than silently waving actions through.
func (e *Engine) EvaluateAction(ctx context.Context, system *models.AISystem, action string, evalContext map[string]interface{}) (*models.EvaluationResult, error) {
	if system == nil {
		return nil, fmt.Errorf("evaluate action: nil system")
	}
	started := time.Now()

	policies, err := e.source.ListEnabledPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled policies: %w", err)
	}
	sort.SliceStable(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})

	result := &models.EvaluationResult{
		Allowed:          true,
		SystemID:         system.ID,
		Action:           action,
		Results:          []models.PolicyResult{},
		BlockingFailures: []string{},
		Warnings:         []string{},
	}

	for i := range policies {
		p := &policies[i]
		if !Matches(p.MatchCriteria, system, action) {
			continue
		}
		pr := e.evaluatePolicy(p, system, evalContext, result)
		result.Results = append(result.Results, pr)
		result.PoliciesEvaluated++
		if pr.Passed {
			result.PoliciesPassed++
		} else {
			result.PoliciesFailed++
		}
	}

	result.Allowed = result.PoliciesFailed == 0
	e.metrics.ObserveEvaluation(result.Allowed, time.Since(started))
	e.logger.Debug("action evaluated",
		"system_id", system.ID,
		"action", action,
		"allowed", result.Allowed,
		"policies_evaluated", result.PoliciesEvaluated,
		"policies_failed", result.PoliciesFailed)
	return result, nil
}

// evaluatePolicy runs one policy's rules in declared order, appending
// blocking and warning messages to the shared aggregate in rule order.
func (e *Engine) evaluatePolicy(p *models.Policy, system *models.AISystem, evalContext map[string]interface{}, agg *models.EvaluationResult) models.PolicyResult {
	pr := models.PolicyResult{
		PolicyID:    p.ID,
		PolicyName:  p.Name,
		Passed:      true,
		RuleResults: make([]models.RuleResult, 0, len(p.Rules)),
	}

	for _, rule := range p.Rules {
		severity := p.EffectiveSeverity(rule)
		rr := models.RuleResult{
			RuleName: rule.Name,
			Severity: severity,
		}

		passed, err := e.evaluator.Evaluate(rule.Condition, system, evalContext)
		if err != nil {
			var ef *EvaluatorFault
			if !errors.As(err, &ef) {
				ef = fault(rule.Condition, "%v", err)
			}
			rr.Passed = false
			rr.Error = ef.Error()
			rr.Message = rule.Message
			e.logger.Warn("rule condition fault",
				"policy", p.Name, "rule", rule.Name, "error", ef.Error())
		} else {
			rr.Passed = passed
			if !passed {
				rr.Message = rule.Message
			}
		}

		if !rr.Passed {
			message := rule.Message
			if message == "" && rr.Error != "" {
				message = rr.Error
			}
			switch severity {
			case models.SeverityError:
				pr.Passed = false
				agg.BlockingFailures = append(agg.BlockingFailures, message)
			case models.SeverityWarning:
				agg.Warnings = append(agg.Warnings, message)
			}
			// info failures stay in rule results only
		}

		pr.RuleResults = append(pr.RuleResults, rr)
	}
	return pr
}
