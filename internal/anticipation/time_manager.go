package anticipation

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

// TimeManager supplies the current time, real or virtual. Test scenarios
// switch it to a scaled virtual clock over MQTT so suggestion timing can be
// replayed at any hour of the day.
type TimeManager struct {
	mu           sync.RWMutex
	testMode     bool
	virtualStart time.Time
	realStart    time.Time
	timeScale    int
	realNow      func() time.Time
	logger       *slog.Logger
}

// TimeConfig is the payload of the time configuration topic
type TimeConfig struct {
	VirtualStart string `json:"virtual_start"`
	TimeScale    int    `json:"time_scale"`
	TestMode     bool   `json:"test_mode"`
}

// NewTimeManager creates a time manager running on the wall clock
func NewTimeManager(logger *slog.Logger) *TimeManager {
	return newTimeManager(time.Now, logger)
}

func newTimeManager(realNow func() time.Time, logger *slog.Logger) *TimeManager {
	return &TimeManager{
		realStart: realNow(),
		timeScale: 1,
		realNow:   realNow,
		logger:    logger,
	}
}

// ConfigureFromMQTT subscribes to test mode configuration
func (tm *TimeManager) ConfigureFromMQTT(client mqtt.Subscriber) error {
	return client.Subscribe(mqtt.TopicTimeConfig, 1, func(msg mqtt.Message) {
		tm.HandleConfig(msg.Payload())
	})
}

// HandleConfig applies a time configuration payload. Invalid payloads are
// logged and leave the current mode unchanged.
func (tm *TimeManager) HandleConfig(payload []byte) {
	var cfg TimeConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		tm.logger.Error("Failed to parse test mode config", "error", err)
		return
	}

	if !cfg.TestMode {
		tm.mu.Lock()
		tm.testMode = false
		tm.mu.Unlock()
		tm.logger.Info("Test mode disabled")
		return
	}

	virtualStart, err := time.Parse(time.RFC3339, cfg.VirtualStart)
	if err != nil {
		tm.logger.Error("Invalid virtual_start time", "virtual_start", cfg.VirtualStart, "error", err)
		return
	}
	if cfg.TimeScale < 1 {
		cfg.TimeScale = 1
	}

	tm.mu.Lock()
	tm.testMode = true
	tm.virtualStart = virtualStart
	tm.realStart = tm.realNow()
	tm.timeScale = cfg.TimeScale
	tm.mu.Unlock()

	tm.logger.Info("Test mode configured",
		"virtual_start", cfg.VirtualStart,
		"time_scale", cfg.TimeScale)
}

// Now returns the current time (real or virtual)
func (tm *TimeManager) Now() time.Time {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if !tm.testMode {
		return tm.realNow()
	}

	realElapsed := tm.realNow().Sub(tm.realStart)
	return tm.virtualStart.Add(realElapsed * time.Duration(tm.timeScale))
}

// IsTestMode returns whether test mode is active
func (tm *TimeManager) IsTestMode() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.testMode
}
