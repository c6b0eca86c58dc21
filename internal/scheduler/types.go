package scheduler

import "time"

// TaskSendReminders is the job_history task name of a dispatch run.
const TaskSendReminders = "send_reminders"

// ReminderPayload is the optional JSON detail of a scheduled invocation. Both
// fields override configuration for a single run, which allows manual
// invocation and backfilling:
//
//	{
//	  "reference_time": "2026-02-06T09:00:00Z",  // optional
//	  "test_mode": true                          // optional
//	}
type ReminderPayload struct {
	// ReferenceTime is the "now" used for eligibility and deadline
	// calculations. If nil, the trigger time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	TestMode      *bool      `json:"test_mode,omitempty"`
}

// RunSummary counts what a dispatch run did. Every loaded user lands in
// exactly one of the skip counters or in Sent, Failed or Pending.
type RunSummary struct {
	RunID               string `json:"run_id"`
	Users               int    `json:"users"`
	Sent                int    `json:"sent"`
	Failed              int    `json:"failed"`
	Pending             int    `json:"pending"`
	SkippedUnconfigured int    `json:"skipped_unconfigured"`
	SkippedWrongTime    int    `json:"skipped_wrong_time"`
	SkippedInvalid      int    `json:"skipped_invalid"`
	SkippedNoOpenItems  int    `json:"skipped_no_open_items"`
}
