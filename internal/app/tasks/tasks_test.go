package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/services/alerts"
	"github.com/R3E-Network/sentinel/internal/app/services/cameras"
	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/app/storage/memory"
)

func TestQueueEnqueueWithExpiry(t *testing.T) {
	broker := NewMemoryBroker()
	q := NewQueue(broker)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }

	require.NoError(t, q.EnqueueWithExpiry(context.Background(), "digest", map[string]int{"n": 1}, time.Hour))
	task, err := broker.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "digest", task.Name)
	assert.JSONEq(t, `{"n":1}`, string(task.Payload))
	require.NotNil(t, task.ExpiresAt)
	assert.False(t, task.Expired(base.Add(59*time.Minute)))
	assert.True(t, task.Expired(base.Add(61*time.Minute)))

	_, err = broker.Pop(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	broker := NewMemoryBroker()
	w := NewWorker(broker, 1, nil)
	var calls int32
	w.Handle("flaky", func(context.Context, Task) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})

	ctx := context.Background()
	task := Task{ID: "1", Name: "flaky"}
	for i := 0; i < MaxAttempts; i++ {
		w.Process(ctx, task)
		if i < MaxAttempts-1 {
			var err error
			task, err = broker.Pop(ctx, time.Second)
			require.NoError(t, err)
			assert.Equal(t, i+1, task.Attempts)
		}
	}
	assert.Equal(t, int32(MaxAttempts), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, broker.Len())
	dead := broker.Dead()
	require.Len(t, dead, 1)
	assert.Equal(t, MaxAttempts, dead[0].Attempts)
}

func TestWorkerDropsUnknownAndExpired(t *testing.T) {
	broker := NewMemoryBroker()
	w := NewWorker(broker, 1, nil)
	ran := false
	w.Handle("known", func(context.Context, Task) error { ran = true; return nil })

	past := time.Now().Add(-time.Minute)
	w.Process(context.Background(), Task{Name: "unknown"})
	w.Process(context.Background(), Task{Name: "known", ExpiresAt: &past})
	assert.False(t, ran)
	assert.Equal(t, 0, broker.Len())
	assert.Empty(t, broker.Dead())
}

func TestWorkerRecoversPanics(t *testing.T) {
	broker := NewMemoryBroker()
	w := NewWorker(broker, 1, nil)
	w.Handle("explode", func(context.Context, Task) error { panic("nil camera") })

	w.Process(context.Background(), Task{Name: "explode"})
	assert.Equal(t, 1, broker.Len(), "panicking task is requeued")
}

func TestWorkerRunsQueuedTasks(t *testing.T) {
	broker := NewMemoryBroker()
	q := NewQueue(broker)
	w := NewWorker(broker, 3, nil)
	done := make(chan string, 5)
	w.Handle("echo", func(_ context.Context, task Task) error {
		var v string
		if err := task.Decode(&v); err != nil {
			return err
		}
		done <- v
		return nil
	})

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop(ctx)) }()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, "echo", v))
	}
	seen := map[string]bool{}
	for len(seen) < 3 {
		select {
		case v := <-done:
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("tasks not processed, saw %v", seen)
		}
	}
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(NewQueue(NewMemoryBroker()), nil)
	for _, e := range DefaultSchedule() {
		require.NoError(t, s.Add(e))
	}
	assert.Len(t, s.Entries(), 3)
	assert.Error(t, s.Add(Entry{Spec: "every tuesday", Task: "x"}))

	broker := NewMemoryBroker()
	s = NewScheduler(NewQueue(broker), nil)
	s.fire(Entry{Task: notifications.DigestTask, Expiry: time.Hour})
	task, err := broker.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, notifications.DigestTask, task.Name)
	assert.NotNil(t, task.ExpiresAt)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestRegisteredHandlers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user, err := store.CreateUser(ctx, account.User{Email: "ops@example.com", Role: account.RoleUser, IsActive: true}, notification.DefaultSetting(0))
	require.NoError(t, err)
	cam := camera.New()
	cam.Name, cam.StreamURL, cam.UserID = "Dock", "rtsp://dock/live", user.ID
	cam, err = store.CreateCamera(ctx, cam)
	require.NoError(t, err)

	online := cameras.ProberFunc(func(context.Context, camera.Camera) (camera.Status, error) {
		return camera.StatusOnline, nil
	})
	notif := notifications.New(store, store, store, store, nil, nil)
	broker := NewMemoryBroker()
	w := NewWorker(broker, 1, nil)
	Register(w, Services{Cameras: cameras.New(store, online, nil), Notifications: notif}, nil)

	w.Process(ctx, Task{Name: UpdateStatusesTask})
	cam, err = store.GetCamera(ctx, cam.ID)
	require.NoError(t, err)
	assert.Equal(t, camera.StatusOnline, cam.Status)

	a, err := store.CreateAlert(ctx, alert.Alert{Title: "Fire", AlertType: alert.TypeFireSmoke, Status: alert.StatusNew, Severity: alert.SeverityCritical, Confidence: 0.95, CameraID: cam.ID})
	require.NoError(t, err)
	q := NewQueue(broker)
	require.NoError(t, q.Enqueue(ctx, alerts.DispatchTask, alerts.DispatchPayload{AlertID: a.ID}))
	task, err := broker.Pop(ctx, time.Second)
	require.NoError(t, err)
	w.Process(ctx, task)

	logs, _, err := store.ListNotificationLogs(ctx, notification.LogFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	w.Process(ctx, Task{Name: alerts.DispatchTask, Payload: []byte(`{"alert_id":4242}`)})
	assert.Equal(t, 0, broker.Len(), "dispatch for a missing alert is dropped")
	assert.Empty(t, broker.Dead())
}

// failingLogStore fails the nth notification log update.
type failingLogStore struct {
	*memory.Store
	failOn  int
	updates int
}

func (s *failingLogStore) UpdateNotificationLog(ctx context.Context, l notification.Log) (notification.Log, error) {
	s.updates++
	if s.updates == s.failOn {
		return notification.Log{}, errors.New("connection reset")
	}
	return s.Store.UpdateNotificationLog(ctx, l)
}

func TestDispatchRetryDoesNotResendDeliveredChannels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user, err := store.CreateUser(ctx, account.User{Email: "desk@example.com", Role: account.RoleUser, IsActive: true}, notification.DefaultSetting(0))
	require.NoError(t, err)
	cam := camera.New()
	cam.Name, cam.StreamURL, cam.UserID = "Gate", "rtsp://gate/live", user.ID
	cam, err = store.CreateCamera(ctx, cam)
	require.NoError(t, err)
	a, err := store.CreateAlert(ctx, alert.Alert{Title: "Smoke", AlertType: alert.TypeFireSmoke, Status: alert.StatusNew, Severity: alert.SeverityCritical, Confidence: 0.9, CameraID: cam.ID})
	require.NoError(t, err)

	var emails int32
	senders := map[notification.Channel]notifications.Sender{
		notification.ChannelEmail: notifications.SenderFunc(func(context.Context, notifications.Message) error {
			atomic.AddInt32(&emails, 1)
			return nil
		}),
	}
	logs := &failingLogStore{Store: store, failOn: 2}
	broker := NewMemoryBroker()
	w := NewWorker(broker, 1, nil)
	Register(w, Services{Notifications: notifications.New(logs, store, store, store, senders, nil)}, nil)

	payload, err := json.Marshal(alerts.DispatchPayload{AlertID: a.ID})
	require.NoError(t, err)
	w.Process(ctx, Task{ID: "d1", Name: alerts.DispatchTask, Payload: payload})
	retry, err := broker.Pop(ctx, time.Second)
	require.NoError(t, err, "failed dispatch is requeued")
	w.Process(ctx, retry)

	assert.Equal(t, int32(1), atomic.LoadInt32(&emails))
	assert.Empty(t, broker.Dead())
	sent, _, err := store.ListNotificationLogs(ctx, notification.LogFilter{AlertID: a.ID, Status: notification.StatusSent})
	require.NoError(t, err)
	per := map[notification.Channel]int{}
	for _, l := range sent {
		per[l.NotificationType]++
	}
	assert.Equal(t, map[notification.Channel]int{notification.ChannelEmail: 1, notification.ChannelPush: 1}, per)
}

func TestRedisBrokerIntegration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	queue := "sentinel-test-" + time.Now().Format("150405.000000")
	b := NewRedisBroker(client, queue)
	defer client.Del(ctx, queue, b.DeadQueue())

	require.NoError(t, NewQueue(b).Enqueue(ctx, "ping", nil))
	task, err := b.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", task.Name)

	_, err = b.Pop(ctx, time.Second)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, b.DeadLetter(ctx, task))
	n, err := client.LLen(ctx, b.DeadQueue()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
