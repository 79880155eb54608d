package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
)

type fakeDefinitions struct {
	definitions []models.EligibilityCheckDefinition
}

func (f *fakeDefinitions) GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error) {
	var out []models.EligibilityCheckDefinition
	for _, definition := range f.definitions {
		for _, id := range ids {
			if definition.ID == id {
				out = append(out, definition)
			}
		}
	}
	return out, nil
}

type stubEvaluator struct {
	result Result
	err    error
	calls  int
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ Input) (Result, error) {
	s.calls++
	return s.result, s.err
}

func newTestIncentive(checks ...models.EligibilityCheckValue) *models.Incentive {
	return &models.Incentive{
		ID:                    "incentive-1",
		SubscriptionCheckMode: models.CheckModeAutomatic,
		EligibilityChecks:     checks,
	}
}

func newTestDefinitions() *fakeDefinitions {
	return &fakeDefinitions{definitions: []models.EligibilityCheckDefinition{
		{ID: "1", Label: models.CheckLabelFranceConnect, RejectionMotive: models.RejectionNotFranceConnect},
		{ID: "2", Label: models.CheckLabelRPCCEERequest, RejectionMotive: models.RejectionInvalidRPCCEERequest},
		{ID: "3", Label: models.CheckLabelExcludeIncentives, RejectionMotive: models.RejectionValidSubscriptionExists},
	}}
}

func TestRunShortCircuitsOnFirstFailure(t *testing.T) {
	franceConnect := &stubEvaluator{result: Result{Passed: false}}
	rpc := &stubEvaluator{result: Result{Passed: true}}
	engine := NewEngine(newTestDefinitions(), map[string]Evaluator{
		models.CheckLabelFranceConnect: franceConnect,
		models.CheckLabelRPCCEERequest: rpc,
	})
	incentive := newTestIncentive(
		models.EligibilityCheckValue{ID: "1", Active: true},
		models.EligibilityCheckValue{ID: "2", Active: true},
	)

	outcome, err := engine.Run(context.Background(), &models.Subscription{ID: "s1"}, incentive, time.Now())

	require.NoError(t, err)
	assert.False(t, outcome.Eligible)
	assert.Equal(t, models.RejectionNotFranceConnect, outcome.RejectionReason)
	assert.Empty(t, outcome.Comments)
	assert.Equal(t, 1, franceConnect.calls)
	assert.Equal(t, 0, rpc.calls, "second check must never run after a failure")
}

func TestRunFormatsExternalFailureComments(t *testing.T) {
	engine := NewEngine(newTestDefinitions(), map[string]Evaluator{
		models.CheckLabelFranceConnect: &stubEvaluator{result: Result{Passed: true}},
		models.CheckLabelRPCCEERequest: &stubEvaluator{result: Result{Passed: false, Code: 404, Message: "Not Found"}},
	})
	incentive := newTestIncentive(
		models.EligibilityCheckValue{ID: "1", Active: true},
		models.EligibilityCheckValue{ID: "2", Active: true},
	)

	outcome, err := engine.Run(context.Background(), &models.Subscription{ID: "s1"}, incentive, time.Now())

	require.NoError(t, err)
	assert.False(t, outcome.Eligible)
	assert.Equal(t, models.RejectionInvalidRPCCEERequest, outcome.RejectionReason)
	assert.Equal(t, "HTTP 404 - Not Found", outcome.Comments)
}

func TestRunAllChecksPass(t *testing.T) {
	engine := NewEngine(newTestDefinitions(), map[string]Evaluator{
		models.CheckLabelFranceConnect: &stubEvaluator{result: Result{Passed: true}},
		models.CheckLabelRPCCEERequest: &stubEvaluator{result: Result{Passed: true, Data: map[string]interface{}{"journey_id": "abc"}}},
	})
	incentive := newTestIncentive(
		models.EligibilityCheckValue{ID: "1", Active: true},
		models.EligibilityCheckValue{ID: "2", Active: true},
	)

	outcome, err := engine.Run(context.Background(), &models.Subscription{ID: "s1"}, incentive, time.Now())

	require.NoError(t, err)
	assert.True(t, outcome.Eligible)
	assert.Empty(t, outcome.RejectionReason)
	assert.Equal(t, map[string]interface{}{"journey_id": "abc"}, outcome.AdditionalProperties)
}

func TestRunSkipsInactiveChecks(t *testing.T) {
	franceConnect := &stubEvaluator{result: Result{Passed: false}}
	rpc := &stubEvaluator{result: Result{Passed: true}}
	engine := NewEngine(newTestDefinitions(), map[string]Evaluator{
		models.CheckLabelFranceConnect: franceConnect,
		models.CheckLabelRPCCEERequest: rpc,
	})
	incentive := newTestIncentive(
		models.EligibilityCheckValue{ID: "1", Active: false},
		models.EligibilityCheckValue{ID: "2", Active: true},
	)

	outcome, err := engine.Run(context.Background(), &models.Subscription{ID: "s1"}, incentive, time.Now())

	require.NoError(t, err)
	assert.True(t, outcome.Eligible)
	assert.Equal(t, 0, franceConnect.calls)
	assert.Equal(t, 1, rpc.calls)
}

func TestRunRejectsDuplicateActiveCheckIDs(t *testing.T) {
	engine := NewEngine(newTestDefinitions(), map[string]Evaluator{
		models.CheckLabelFranceConnect: &stubEvaluator{result: Result{Passed: true}},
	})
	incentive := newTestIncentive(
		models.EligibilityCheckValue{ID: "1", Active: true},
		models.EligibilityCheckValue{ID: "1", Active: true},
	)

	_, err := engine.Run(context.Background(), &models.Subscription{ID: "s1"}, incentive, time.Now())

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 422, appErr.Status)
}
