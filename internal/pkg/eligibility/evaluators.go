package eligibility

import (
	"context"
	"fmt"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/operatordata"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/registry"
)

// NewEvaluators builds the closed evaluator set, keyed by check label.
func NewEvaluators(citizens repository.CitizenRepository, subscriptions repository.SubscriptionRepository, rpc *registry.Client) map[string]Evaluator {
	return map[string]Evaluator{
		models.CheckLabelFranceConnect:     &franceConnectEvaluator{citizens: citizens},
		models.CheckLabelRPCCEERequest:     &rpcCEEEvaluator{client: rpc},
		models.CheckLabelExcludeIncentives: &exclusionEvaluator{subscriptions: subscriptions},
	}
}

// franceConnectEvaluator passes when the applicant's full identity (last
// name, first name, birthdate) was certified by FranceConnect.
type franceConnectEvaluator struct {
	citizens repository.CitizenRepository
}

func (e *franceConnectEvaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	citizen, err := e.citizens.GetByID(in.Subscription.CitizenID)
	if err != nil {
		return Result{}, fmt.Errorf("eligibility: load citizen %s: %w", in.Subscription.CitizenID, err)
	}
	return Result{Passed: citizen.IsFranceConnected()}, nil
}

// rpcCEEEvaluator posts the canonicalized specific fields to the CEE
// registry and passes on a success reply.
type rpcCEEEvaluator struct {
	client *registry.Client
}

func (e *rpcCEEEvaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	if !e.client.HasToken() {
		return Result{}, apperrors.Unprocessable("subscription.token.notFound",
			"no CEE registry token configured")
	}

	record := operatordata.Convert(in.Subscription.SpecificFields, in.Subscription.LastName, in.ApplicationTimestamp)
	response, err := e.client.CheckCEE(ctx, record)
	if err != nil {
		return Result{}, apperrors.BadGateway("subscription.rpc.cee.unreachable", err.Error())
	}

	result := Result{Passed: response.Status == registry.StatusSuccess, Data: response.Data}
	if !result.Passed {
		result.Code = response.Code
		result.Message = response.Message
	}
	return result, nil
}

// exclusionEvaluator fails when the citizen already holds a validated
// subscription for one of the incentive ids listed on the check.
type exclusionEvaluator struct {
	subscriptions repository.SubscriptionRepository
}

func (e *exclusionEvaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	exists, err := e.subscriptions.HasValidatedForIncentives(in.Subscription.CitizenID, in.Check.Value)
	if err != nil {
		return Result{}, fmt.Errorf("eligibility: exclusion lookup: %w", err)
	}
	return Result{Passed: !exists}, nil
}
