// Package eligibility runs the ordered check pipeline that decides whether
// an automatic-mode subscription is validated or rejected.
package eligibility

import (
	"context"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
)

// Result is a single evaluator verdict. Code and Message are only set when
// the verdict came back from an external call.
type Result struct {
	Passed  bool
	Code    int
	Message string
	Data    map[string]interface{}
}

// Input bundles everything an evaluator may need. ApplicationTimestamp is
// fixed once per pipeline run so every evaluator and the final transition
// see the same instant.
type Input struct {
	Subscription         *models.Subscription
	Incentive            *models.Incentive
	Check                models.EligibilityCheckValue
	ApplicationTimestamp time.Time
}

// Evaluator decides one named eligibility rule. A returned error is an
// infrastructure failure and aborts the pipeline; a failed Result is a
// business verdict and rejects the subscription.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (Result, error)
}

// DefinitionSource resolves check definitions referenced by an incentive.
type DefinitionSource interface {
	GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error)
}

// Outcome is the pipeline verdict for one subscription.
type Outcome struct {
	Eligible             bool
	RejectionReason      string
	Comments             string
	AdditionalProperties map[string]interface{}
}

// Engine evaluates an incentive's active checks in their declared order,
// stopping at the first failure. Order and short-circuit are contractual.
type Engine struct {
	evaluators  map[string]Evaluator
	definitions DefinitionSource
}

// NewEngine wires the closed evaluator set against its collaborators.
func NewEngine(definitions DefinitionSource, evaluators map[string]Evaluator) *Engine {
	return &Engine{evaluators: evaluators, definitions: definitions}
}

// Run walks the incentive's active checks. Checks run sequentially, never
// in parallel, never retried. The first failing check carries its
// definition's rejection motive; external failures add a comment formatted
// as "HTTP <code> - <message>".
func (e *Engine) Run(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive, applicationTimestamp time.Time) (Outcome, error) {
	activeIDs := incentive.EligibilityChecks.ActiveIDs()
	if dup := firstDuplicate(activeIDs); dup != "" {
		return Outcome{}, apperrors.Unprocessable("eligibility.checks.duplicated",
			fmt.Sprintf("eligibility check %s is declared twice", dup))
	}

	definitions, err := e.definitions.GetCheckDefinitionsByIDs(activeIDs)
	if err != nil {
		return Outcome{}, fmt.Errorf("eligibility: load check definitions: %w", err)
	}
	byID := make(map[string]models.EligibilityCheckDefinition, len(definitions))
	for _, definition := range definitions {
		byID[definition.ID] = definition
	}

	outcome := Outcome{Eligible: true}
	for _, check := range incentive.EligibilityChecks {
		if !check.Active {
			continue
		}
		definition, ok := byID[check.ID]
		if !ok {
			return Outcome{}, apperrors.Unprocessable("eligibility.check.unknown",
				fmt.Sprintf("eligibility check %s has no definition", check.ID))
		}
		evaluator, ok := e.evaluators[definition.Label]
		if !ok {
			return Outcome{}, apperrors.Unprocessable("eligibility.label.unknown",
				fmt.Sprintf("no evaluator registered for label %s", definition.Label))
		}

		result, err := evaluator.Evaluate(ctx, Input{
			Subscription:         subscription,
			Incentive:            incentive,
			Check:                check,
			ApplicationTimestamp: applicationTimestamp,
		})
		if err != nil {
			return Outcome{}, err
		}
		fiberlog.Debugf("[Eligibility] %s result for subscription %s: passed=%t",
			definition.Label, subscription.ID, result.Passed)

		outcome.AdditionalProperties = result.Data
		if !result.Passed {
			outcome.Eligible = false
			outcome.RejectionReason = definition.RejectionMotive
			outcome.Comments = result.Message
			if result.Code != 0 {
				outcome.Comments = fmt.Sprintf("HTTP %d - %s", result.Code, result.Message)
			}
			break
		}
	}
	return outcome, nil
}

func firstDuplicate(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}
