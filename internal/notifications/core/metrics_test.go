package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func findDatum(data []cwtypes.MetricDatum, name, reason string) *cwtypes.MetricDatum {
	for i := range data {
		d := &data[i]
		if *d.MetricName != name {
			continue
		}
		if reason == "" && len(d.Dimensions) == 0 {
			return d
		}
		for _, dim := range d.Dimensions {
			if *dim.Name == DimSkipReason && *dim.Value == reason {
				return d
			}
		}
	}
	return nil
}

func TestCloudWatchReminderMetrics_RecordRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	metrics := NewCloudWatchReminderMetrics(cw, "LysjeTest", nil)

	metrics.RecordRun(context.Background(), RunMetrics{
		Users:    10,
		Sent:     4,
		Failed:   1,
		Pending:  1,
		Skipped:  map[string]int{SkipUnconfigured: 2, SkipWrongTime: 1},
		Duration: 1500 * time.Millisecond,
	})

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if *input.Namespace != "LysjeTest" {
		t.Errorf("namespace = %q, want LysjeTest", *input.Namespace)
	}

	checks := []struct {
		name, reason string
		want         float64
	}{
		{MetricUsersEvaluated, "", 10},
		{MetricRemindersSent, "", 4},
		{MetricRemindersFailed, "", 1},
		{MetricRemindersPending, "", 1},
		{MetricRemindersSkipped, SkipUnconfigured, 2},
		{MetricRemindersSkipped, SkipWrongTime, 1},
		{MetricRemindersSkipped, SkipInvalid, 0},
		{MetricRemindersSkipped, SkipNoOpenItems, 0},
		{MetricRunDuration, "", 1500},
	}
	for _, c := range checks {
		d := findDatum(input.MetricData, c.name, c.reason)
		if d == nil {
			t.Errorf("missing datum %s/%s", c.name, c.reason)
			continue
		}
		if *d.Value != c.want {
			t.Errorf("%s/%s = %v, want %v", c.name, c.reason, *d.Value, c.want)
		}
	}
	if findDatum(input.MetricData, MetricRunFatal, "") != nil {
		t.Error("RunFatal should only be emitted for fatal runs")
	}
	if d := findDatum(input.MetricData, MetricRunDuration, ""); d != nil && d.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("duration unit = %s, want Milliseconds", d.Unit)
	}
}

func TestCloudWatchReminderMetrics_RecordRun_Fatal(t *testing.T) {
	cw := &mockCloudWatchClient{}
	metrics := NewCloudWatchReminderMetrics(cw, "", nil)

	metrics.RecordRun(context.Background(), RunMetrics{Fatal: true})

	input := cw.calls[0]
	if *input.Namespace != "Lysje" {
		t.Errorf("default namespace = %q, want Lysje", *input.Namespace)
	}
	if findDatum(input.MetricData, MetricRunFatal, "") == nil {
		t.Error("expected RunFatal datum")
	}
}

func TestCloudWatchReminderMetrics_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: fmt.Errorf("throttled")}
	metrics := NewCloudWatchReminderMetrics(cw, "Lysje", nil)

	// Must not panic or propagate.
	metrics.RecordRun(context.Background(), RunMetrics{Sent: 1})

	if len(cw.calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(cw.calls))
	}
}

func TestNoopReminderMetrics(t *testing.T) {
	var m ReminderMetrics = NoopReminderMetrics{}
	m.RecordRun(context.Background(), RunMetrics{Sent: 3})
}
