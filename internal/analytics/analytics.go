package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
)

const (
	clientPrefix  = "client:"
	counterPrefix = "usage_"
)

// DailyStats summarises generations across all clients for one day and
// its month.
type DailyStats struct {
	Date          string                 `json:"date"`
	Month         string                 `json:"month"`
	TotalDay      int                    `json:"total_day"`
	TotalMonth    int                    `json:"total_month"`
	ActiveClients int                    `json:"active_clients"`
	ClientStats   map[string]ClientStats `json:"client_stats"`
}

type ClientStats struct {
	ClientID   string `json:"client_id"`
	DayCount   int    `json:"day_count"`
	MonthCount int    `json:"month_count"`
}

// AnalyzeUsage reads the usage counters of every client namespace in store.
// Counters that fail to parse are skipped.
func AnalyzeUsage(ctx context.Context, store storage.Store, target time.Time) (*DailyStats, error) {
	day, month := usage.PeriodKeys(target)
	stats := &DailyStats{
		Date:        day,
		Month:       month,
		ClientStats: make(map[string]ClientStats),
	}

	keys, err := store.Keys(ctx, clientPrefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	for _, key := range keys {
		rest := strings.TrimPrefix(key, clientPrefix)
		sep := strings.Index(rest, ":")
		if sep < 0 {
			continue
		}
		clientID, counter := rest[:sep], rest[sep+1:]
		if counter != counterPrefix+day && counter != counterPrefix+month {
			continue
		}

		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		n, convErr := strconv.Atoi(raw)
		if !ok || convErr != nil {
			continue
		}

		cs := stats.ClientStats[clientID]
		cs.ClientID = clientID
		if counter == counterPrefix+day {
			cs.DayCount = n
			stats.TotalDay += n
		} else {
			cs.MonthCount = n
			stats.TotalMonth += n
		}
		stats.ClientStats[clientID] = cs
	}

	for _, cs := range stats.ClientStats {
		if cs.DayCount > 0 {
			stats.ActiveClients++
		}
	}
	return stats, nil
}

// GenerateReportSummary renders the stats as plain text, busiest clients first.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s (month %s):\n", ds.Date, ds.Month)
	fmt.Fprintf(&b, "- Generations today: %d\n", ds.TotalDay)
	fmt.Fprintf(&b, "- Generations this month: %d\n", ds.TotalMonth)
	fmt.Fprintf(&b, "- Active clients today: %d\n", ds.ActiveClients)

	if len(ds.ClientStats) == 0 {
		return b.String()
	}

	clients := make([]ClientStats, 0, len(ds.ClientStats))
	for _, cs := range ds.ClientStats {
		clients = append(clients, cs)
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].MonthCount != clients[j].MonthCount {
			return clients[i].MonthCount > clients[j].MonthCount
		}
		return clients[i].ClientID < clients[j].ClientID
	})

	b.WriteString("\nClients:\n")
	for _, cs := range clients {
		fmt.Fprintf(&b, "- %s: %d today, %d this month\n", cs.ClientID, cs.DayCount, cs.MonthCount)
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
