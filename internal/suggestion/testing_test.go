package suggestion

import (
	"log/slog"
	"os"
	"time"
)

var testNow = time.Date(2025, 10, 15, 10, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func candidate(id string, category Category, title string, score float64, createdAt time.Time) Suggestion {
	expires := createdAt.Add(30 * time.Minute)
	return Suggestion{
		ID:             id,
		Category:       category,
		Title:          title,
		BaseConfidence: score,
		FinalScore:     score,
		Source:         SourceTemplate,
		CreatedAt:      createdAt,
		ExpiresAt:      &expires,
	}
}
