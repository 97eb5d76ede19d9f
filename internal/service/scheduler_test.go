package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSchedulerValidatesJobs(t *testing.T) {
	t.Parallel()

	run := func(context.Context) error { return nil }
	tests := []struct {
		name string
		jobs []Job
	}{
		{name: "no jobs"},
		{name: "missing name", jobs: []Job{{Interval: time.Second, Run: run}}},
		{name: "missing run", jobs: []Job{{Name: "x", Interval: time.Second}}},
		{name: "zero interval", jobs: []Job{{Name: "x", Run: run}}},
	}
	for _, tt := range tests {
		if _, err := NewScheduler(nil, tt.jobs...); err == nil {
			t.Fatalf("%s: NewScheduler() should fail", tt.name)
		}
	}
}

func TestSchedulerRunsImmediatelyThenOnInterval(t *testing.T) {
	t.Parallel()

	var fast, slow atomic.Int32
	scheduler, err := NewScheduler(zap.NewNop(),
		Job{Name: "fast", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "slow", Interval: time.Hour, Run: func(context.Context) error {
			slow.Add(1)
			return nil
		}},
	)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for fast.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	if fast.Load() < 3 {
		t.Fatalf("fast runs = %d, want at least 3", fast.Load())
	}
	if slow.Load() != 1 {
		t.Fatalf("slow runs = %d, want exactly the initial run", slow.Load())
	}
}

func TestSchedulerLogsJobErrorsAndKeepsRunning(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	var runs atomic.Int32
	scheduler, err := NewScheduler(zap.New(core), Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	entries := logs.FilterMessage("scheduled job run failed").All()
	if len(entries) < 2 {
		t.Fatalf("error logs = %d, want at least 2", len(entries))
	}
	if _, ok := entries[0].ContextMap()["traceId"]; !ok {
		t.Fatalf("error log fields = %v, want traceId", entries[0].Context)
	}
}

func TestStageJobsApplyDefaultIntervals(t *testing.T) {
	t.Parallel()

	if job := FormerJob(&FormerService{}, 0); job.Interval != DefaultFormerInterval || job.Name != stageFormer {
		t.Fatalf("FormerJob() = %+v", job)
	}
	if job := SenderJob(&SenderService{}, 0); job.Interval != DefaultSenderInterval || job.Name != stageSender {
		t.Fatalf("SenderJob() = %+v", job)
	}
}
