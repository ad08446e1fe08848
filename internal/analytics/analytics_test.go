package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"reading-leveler/internal/storage"
)

func TestAnalyzeUsage(t *testing.T) {
	ctx := context.Background()
	testDate := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	store := storage.NewMemory()
	seed := map[string]string{
		"client:alice:usage_2024-01-15": "3",
		"client:alice:usage_2024-01":    "12",
		"client:bob:usage_2024-01":      "4",
		"client:bob:usage_2024-01-14":   "4", // previous day
		"client:carol:usage_2024-01-15": "oops",
		"client:carol:saved_themes":     "[]",
		"usage_2024-01-15":              "99", // outside any namespace
	}
	for k, v := range seed {
		if err := store.Set(ctx, k, v); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	stats, err := AnalyzeUsage(ctx, store, testDate)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if stats.Date != "2024-01-15" || stats.Month != "2024-01" {
		t.Errorf("unexpected period: %s %s", stats.Date, stats.Month)
	}
	if stats.TotalDay != 3 {
		t.Errorf("Expected 3 generations today, got %d", stats.TotalDay)
	}
	if stats.TotalMonth != 16 {
		t.Errorf("Expected 16 generations this month, got %d", stats.TotalMonth)
	}
	if stats.ActiveClients != 1 {
		t.Errorf("Expected 1 active client, got %d", stats.ActiveClients)
	}
	if len(stats.ClientStats) != 2 {
		t.Errorf("Expected 2 clients, got %d: %+v", len(stats.ClientStats), stats.ClientStats)
	}
	if bob := stats.ClientStats["bob"]; bob.DayCount != 0 || bob.MonthCount != 4 {
		t.Errorf("unexpected bob stats: %+v", bob)
	}
}

func TestGenerateReportSummary(t *testing.T) {
	stats := &DailyStats{
		Date:          "2024-01-15",
		Month:         "2024-01",
		TotalDay:      3,
		TotalMonth:    16,
		ActiveClients: 1,
		ClientStats: map[string]ClientStats{
			"bob":   {ClientID: "bob", MonthCount: 4},
			"alice": {ClientID: "alice", DayCount: 3, MonthCount: 12},
		},
	}

	summary := stats.GenerateReportSummary()

	expectedParts := []string{
		"Usage for 2024-01-15 (month 2024-01)",
		"Generations today: 3",
		"Generations this month: 16",
		"Active clients today: 1",
		"- alice: 3 today, 12 this month",
	}
	for _, part := range expectedParts {
		if !strings.Contains(summary, part) {
			t.Errorf("Summary should contain '%s', but got:\n%s", part, summary)
		}
	}
	if strings.Index(summary, "alice") > strings.Index(summary, "bob") {
		t.Errorf("busiest client should come first:\n%s", summary)
	}

	js, err := stats.ToJSON()
	if err != nil || !strings.Contains(js, `"total_month": 16`) {
		t.Errorf("unexpected json: %s err=%v", js, err)
	}
}
