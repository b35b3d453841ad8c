// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics tracks procurement activity: requisition throughput per
// workflow outcome and three-way match results
type BusinessMetrics struct {
	logger *zap.Logger

	requisitionSubmittedTotal metric.Int64Counter
	approvalDecisionTotal     metric.Int64Counter
	matchRunTotal             metric.Int64Counter
	matchScore                metric.Int64Histogram
}

// NewBusinessMetrics creates a new BusinessMetrics instance using the given
// meter, or the global meter provider when nil
func NewBusinessMetrics(meter metric.Meter, logger *zap.Logger) (*BusinessMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("procure-backend")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{logger: logger}

	var err error
	bm.requisitionSubmittedTotal, err = meter.Int64Counter(
		"procure_requisition_submitted_total",
		metric.WithDescription("Total number of requisitions submitted for approval"),
		metric.WithUnit("{requisitions}"),
	)
	if err != nil {
		return nil, err
	}

	bm.approvalDecisionTotal, err = meter.Int64Counter(
		"procure_approval_decision_total",
		metric.WithDescription("Total number of approval decisions recorded"),
		metric.WithUnit("{decisions}"),
	)
	if err != nil {
		return nil, err
	}

	bm.matchRunTotal, err = meter.Int64Counter(
		"procure_match_run_total",
		metric.WithDescription("Total number of three-way match runs"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	bm.matchScore, err = meter.Int64Histogram(
		"procure_match_conformity_score",
		metric.WithDescription("Conformity score distribution of three-way match runs"),
		metric.WithUnit("{score}"),
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// RecordRequisitionSubmitted records a requisition entering review
func (m *BusinessMetrics) RecordRequisitionSubmitted(ctx context.Context, requiredLevels int) {
	m.requisitionSubmittedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("required_levels", requiredLevels),
	))
}

// RecordApprovalDecision records an approval, rejection or clarification
func (m *BusinessMetrics) RecordApprovalDecision(ctx context.Context, decision string, level int) {
	m.approvalDecisionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.Int("level", level),
	))
}

// RecordMatchRun records a three-way match run and its score
func (m *BusinessMetrics) RecordMatchRun(ctx context.Context, decision string, score int) {
	attrs := metric.WithAttributes(attribute.String("decision", decision))
	m.matchRunTotal.Add(ctx, 1, attrs)
	m.matchScore.Record(ctx, int64(score), attrs)
}
