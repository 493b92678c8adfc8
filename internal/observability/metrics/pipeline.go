// Package metrics provides standardised metric emission for the verification pipeline.
package metrics

import (
	"time"

	obserrors "github.com/docuvet/docuvet/internal/observability/errors"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a queue job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised queue job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// PipelineMetric captures the outcome of one verification pipeline run.
type PipelineMetric struct {
	DocumentType string
	Status       string
	Category     string
	Duration     time.Duration
	Err          error
}

// EmitPipelineOutcome emits standardised pipeline outcome metrics.
func EmitPipelineOutcome(sink statsd.Sink, in PipelineMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	tags := map[string]string{
		"document_type": in.DocumentType,
		"status":        in.Status,
		"category":      in.Category,
	}
	if in.Err != nil {
		result = ResultError
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	sink.Count("pipeline.outcome", 1, tags)

	if in.Duration > 0 {
		sink.Timing("pipeline.duration", in.Duration, CloneTags(tags))
	}
}

// WebhookMetric captures one webhook delivery attempt.
type WebhookMetric struct {
	Event    string
	Success  bool
	Duration time.Duration
}

// EmitWebhookDelivery emits standardised webhook delivery metrics.
func EmitWebhookDelivery(sink statsd.Sink, in WebhookMetric) {
	if sink == nil {
		return
	}

	result := ResultError
	if in.Success {
		result = ResultSuccess
	}
	tags := map[string]string{
		"event":  in.Event,
		"result": result,
	}

	sink.Count("webhook.delivery", 1, tags)

	if in.Duration > 0 {
		sink.Timing("webhook.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
