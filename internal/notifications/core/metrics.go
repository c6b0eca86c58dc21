// Package core holds infrastructure shared by the notification pipeline,
// currently the run metrics of the reminder job.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names and dimensions.
const (
	MetricRemindersSent    = "RemindersSent"
	MetricRemindersFailed  = "RemindersFailed"
	MetricRemindersPending = "RemindersPending"
	MetricRemindersSkipped = "RemindersSkipped"
	MetricUsersEvaluated   = "UsersEvaluated"
	MetricRunDuration      = "ReminderRunDuration"
	MetricRunFatal         = "ReminderRunFatal"

	DimSkipReason = "Reason"
)

// Skip reasons used as the Reason dimension.
const (
	SkipUnconfigured = "unconfigured"
	SkipWrongTime    = "wrong_time"
	SkipInvalid      = "invalid_preferences"
	SkipNoOpenItems  = "no_open_items"
)

// RunMetrics is the per-run data published after every dispatch run.
type RunMetrics struct {
	Users    int
	Sent     int
	Failed   int
	Pending  int
	Skipped  map[string]int
	Duration time.Duration
	Fatal    bool
}

// ReminderMetrics records the outcome of dispatch runs. Implementations must
// not fail the run: publishing errors are logged only.
type ReminderMetrics interface {
	RecordRun(ctx context.Context, m RunMetrics)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ ReminderMetrics = (*CloudWatchReminderMetrics)(nil)

// CloudWatchReminderMetrics publishes run metrics to CloudWatch in a single
// PutMetricData call per run.
type CloudWatchReminderMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchReminderMetrics creates a publisher for namespace.
func NewCloudWatchReminderMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchReminderMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = "Lysje"
	}
	return &CloudWatchReminderMetrics{client: client, namespace: namespace, logger: logger}
}

func count(name string, v int, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(v)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

// RecordRun emits the counters, one RemindersSkipped datum per reason, the run
// duration and, for aborted runs, RunFatal.
func (m *CloudWatchReminderMetrics) RecordRun(ctx context.Context, r RunMetrics) {
	data := []cwtypes.MetricDatum{
		count(MetricUsersEvaluated, r.Users),
		count(MetricRemindersSent, r.Sent),
		count(MetricRemindersFailed, r.Failed),
		count(MetricRemindersPending, r.Pending),
	}
	for _, reason := range []string{SkipUnconfigured, SkipWrongTime, SkipInvalid, SkipNoOpenItems} {
		data = append(data, count(MetricRemindersSkipped, r.Skipped[reason], cwtypes.Dimension{
			Name:  aws.String(DimSkipReason),
			Value: aws.String(reason),
		}))
	}
	data = append(data, cwtypes.MetricDatum{
		MetricName: aws.String(MetricRunDuration),
		Value:      aws.Float64(float64(r.Duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
	if r.Fatal {
		data = append(data, count(MetricRunFatal, 1))
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record reminder run metrics",
			"error", err.Error(),
			"sent", r.Sent,
			"failed", r.Failed,
		)
	}
}

// NoopReminderMetrics discards all metrics. Used when METRICS_ENABLED is off.
type NoopReminderMetrics struct{}

func (NoopReminderMetrics) RecordRun(context.Context, RunMetrics) {}
