package executor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saaga0h/jeeves-anticipation/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-anticipation/internal/anticipation"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTimeline advances virtual wall time on sleep and lets a test react
// to each sleep, standing in for the agent publishing in the meantime
type fakeTimeline struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	onWake func()
}

func (f *fakeTimeline) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTimeline) Sleep(ctx context.Context, d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept = append(f.slept, d)
	hook := f.onWake
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func newTestRunner(t *testing.T) (*Runner, *mqtt.MockClient, *fakeTimeline) {
	t.Helper()
	client := mqtt.NewMockClient()
	require.NoError(t, client.Connect(context.Background()))

	tl := &fakeTimeline{now: time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)}
	r := NewRunner(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = tl.Now
	r.sleep = tl.Sleep
	return r, client, tl
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:     "afternoon-slump",
		TestMode: &scenario.TestModeConfig{VirtualStart: "2025-10-15T14:00:00Z", TimeScale: 60},
		Events: []scenario.Event{
			{Time: 120, Feedback: "thumbs", Data: map[string]interface{}{"positive": true}, Description: "later"},
			{Time: 0, Activity: "coding", Data: map[string]interface{}{"intensity": 0.9}, Description: "first"},
		},
		Expectations: []scenario.Expectation{
			{
				Time:    180,
				Topic:   "anticipation/suggestions/+",
				Payload: map[string]interface{}{"category": "wellbeing", "final_score": ">0.5"},
			},
			{Time: 180, Topic: "anticipation/suggestions/productivity", Absent: true},
		},
	}
}

func TestRunnerPublishesTimelineAndChecksExpectations(t *testing.T) {
	r, client, tl := newTestRunner(t)

	suggestion := []byte(`{"id":"s1","category":"wellbeing","final_score":0.72}`)
	tl.onWake = func() {
		for _, p := range client.Published() {
			if p.Topic == "anticipation/activity/coding" {
				client.Deliver("anticipation/suggestions/wellbeing", suggestion)
				tl.onWake = nil
				return
			}
		}
	}

	result, err := r.Run(context.Background(), testScenario())
	require.NoError(t, err)

	assert.True(t, result.Passed, "%+v", result.Expectations)
	assert.Equal(t, 2, result.PassedCount)
	assert.Equal(t, "anticipation/suggestions/wellbeing", result.Expectations[0].MatchedOn)

	assert.True(t, client.Subscribed("anticipation/suggestions/#"))
	assert.True(t, client.Subscribed(mqtt.TopicProfile))

	published := client.Published()
	require.Len(t, published, 3)

	assert.Equal(t, mqtt.TopicTimeConfig, published[0].Topic)
	assert.True(t, published[0].Retained)
	var cfg anticipation.TimeConfig
	require.NoError(t, json.Unmarshal(published[0].Payload, &cfg))
	assert.Equal(t, anticipation.TimeConfig{VirtualStart: "2025-10-15T14:00:00Z", TimeScale: 60, TestMode: true}, cfg)

	// Events go out in timeline order, wrapped in a data envelope
	assert.Equal(t, "anticipation/activity/coding", published[1].Topic)
	assert.JSONEq(t, `{"data":{"intensity":0.9}}`, string(published[1].Payload))
	assert.Equal(t, "anticipation/feedback/thumbs", published[2].Topic)

	// Settle, then 120s and 60s more of scenario time at 60x
	assert.Equal(t, []time.Duration{DefaultSettle, 2 * time.Second, time.Second}, tl.slept)
}

func TestRunnerReportsFailures(t *testing.T) {
	r, client, _ := newTestRunner(t)

	s := testScenario()
	s.Expectations = append(s.Expectations, scenario.Expectation{Time: 200, Topic: mqtt.TopicProfile})

	client.Deliver("anticipation/suggestions/productivity", []byte(`{"category":"productivity"}`))
	result, err := r.Run(context.Background(), s)
	require.NoError(t, err)

	// Nothing is captured before the run subscribes
	assert.False(t, result.Passed)
	assert.Equal(t, 1, result.PassedCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.Contains(t, result.Expectations[0].Reason, "no message")
	assert.Contains(t, result.Expectations[2].Reason, "no message")
}

func TestRunnerAbsentFailsOnMatch(t *testing.T) {
	r, client, tl := newTestRunner(t)

	tl.onWake = func() {
		client.Deliver("anticipation/suggestions/productivity", []byte(`{"category":"productivity"}`))
	}

	result, err := r.Run(context.Background(), testScenario())
	require.NoError(t, err)

	require.Len(t, result.Expectations, 2)
	assert.False(t, result.Expectations[0].Passed)
	assert.Contains(t, result.Expectations[0].Reason, "none matched")
	assert.False(t, result.Expectations[1].Passed)
	assert.Contains(t, result.Expectations[1].Reason, "unexpected message")
}

func TestRunnerPublishFailure(t *testing.T) {
	r, client, _ := newTestRunner(t)
	client.PublishErr = assert.AnError

	_, err := r.Run(context.Background(), testScenario())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunnerCancelled(t *testing.T) {
	r, _, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, testScenario())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScaledDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, ScaledDelay(120, 60))
	assert.Equal(t, 90*time.Second, ScaledDelay(90, 0))
	assert.Equal(t, 500*time.Millisecond, ScaledDelay(1, 2))
}
