package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisJobQueueEnqueueRejectsBadInput(t *testing.T) {
	q := newTestQueue(t, 1)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, " ", KindGenerate); err == nil {
		t.Fatalf("expected error for empty report id")
	}
	if _, err := q.Enqueue(ctx, "report-1", "refine"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestRedisJobQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	if err := q.requeueAndAck(ctx, msgID, job.ID, job.ReportID, job.Kind); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	got := streams[0].Messages[0]
	if got.Values["job_id"] != job.ID || got.Values["report_id"] != job.ReportID || got.Values["kind"] != KindOverview {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisJobQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, job.ID, job.ReportID, job.Kind); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected no new message in stream on failure, got len=%d", streamLen)
	}
}

func TestRedisJobQueueHandleMessageTracksStatus(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	var seen Job
	q.handleMessage(ctx, redis.XMessage{ID: msgID, Values: map[string]any{
		"job_id": job.ID, "report_id": job.ReportID, "kind": job.Kind,
	}}, func(_ context.Context, j Job) error {
		seen = j
		return nil
	})
	if seen.Status != StatusProcessing || seen.Attempts != 1 || seen.ReportID != "report-1" {
		t.Fatalf("handler saw %+v", seen)
	}
	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusDone || got.Kind != KindOverview {
		t.Fatalf("job = %+v", got)
	}
	if n, _ := q.client.XLen(ctx, q.stream).Result(); n != 0 {
		t.Fatalf("message not removed, len=%d", n)
	}
}

func TestRedisJobQueueFailureStopsAtRetryBudget(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	var calls int32
	q.handleMessage(ctx, redis.XMessage{ID: msgID, Values: map[string]any{
		"job_id": job.ID, "report_id": job.ReportID, "kind": job.Kind,
	}}, func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("provider timeout")
	})
	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "provider timeout" {
		t.Fatalf("job = %+v", got)
	}
	if n, _ := q.client.XLen(ctx, q.stream).Result(); n != 0 {
		t.Fatalf("failed job must not be requeued, len=%d", n)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d", calls)
	}
}

func TestRedisJobQueueStartProcessesJobs(t *testing.T) {
	q := newTestQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Job, 1)
	q.Start(ctx, 1, func(_ context.Context, j Job) error {
		done <- j
		return nil
	})
	job, err := q.Enqueue(ctx, "report-9", KindGenerate)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case got := <-done:
		if got.ID != job.ID || got.Kind != KindGenerate {
			t.Fatalf("handled %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job was not consumed")
	}
}

func newTestQueue(t *testing.T, maxRetries int) *RedisJobQueue {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewRedisJobQueue(client, RedisQueueConfig{
		Stream:     "test:queue",
		Group:      "test-group",
		Consumer:   "consumer-1",
		MaxRetries: maxRetries,
		Block:      50 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func newPendingQueueMessage(t *testing.T) (*RedisJobQueue, context.Context, string, Job) {
	t.Helper()
	q := newTestQueue(t, 1)
	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "report-1", KindOverview)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}
	return q, ctx, streams[0].Messages[0].ID, job
}
