package activity

import (
	"sort"
	"time"

	"example.com/practice/internal/datekey"
)

// HistoryMonths is the number of trailing months covered by histories and rankings.
const HistoryMonths = 12

// DefaultRankingLimit is the size of a "most common" ranking.
const DefaultRankingLimit = 3

// MonthCount is the number of distinct practice days in one local month.
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Label string `json:"label"` // Jan 2025
	Days  int    `json:"days"`
}

// MonthlyHistory counts distinct local days per month for the trailing twelve
// months ending with the viewer's current month. Month boundaries follow the
// viewer's offset, not UTC.
func MonthlyHistory(records []Record, offsetMinutes int, now time.Time) []MonthCount {
	local := datekey.LocalTime(now, offsetMinutes)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(HistoryMonths - 1), 0)

	months := make([]MonthCount, 0, HistoryMonths)
	index := make(map[string]int, HistoryMonths)
	for i := 0; i < HistoryMonths; i++ {
		m := first.AddDate(0, i, 0)
		key := m.Format("2006-01")
		index[key] = i
		months = append(months, MonthCount{Month: key, Label: m.Format("Jan 2006")})
	}

	for _, day := range DayKeys(records, offsetMinutes) {
		if i, ok := index[day.MonthKey()]; ok {
			months[i].Days++
		}
	}
	return months
}

// Ranked is one entry of a "most common" ranking.
type Ranked struct {
	ItemID   string     `json:"item_id"`
	ItemName string     `json:"item_name"`
	Source   SourceType `json:"source"`
	Count    int        `json:"count"`
}

// MostCommon ranks the items of one source practiced in the trailing twelve
// months by frequency. Ties keep the order in which items first appear in records,
// so a stable store order yields a stable ranking.
func MostCommon(records []Record, source SourceType, now time.Time, limit int) []Ranked {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	cutoff := now.AddDate(0, -HistoryMonths, 0)

	ranked := make([]Ranked, 0)
	position := make(map[string]int)
	for _, r := range records {
		if r.Source != source || r.PerformedAt.Before(cutoff) {
			continue
		}
		key := r.ItemID
		if key == "" {
			key = r.ItemName
		}
		if key == "" {
			continue
		}
		if i, ok := position[key]; ok {
			ranked[i].Count++
			continue
		}
		position[key] = len(ranked)
		ranked = append(ranked, Ranked{ItemID: r.ItemID, ItemName: r.ItemName, Source: source, Count: 1})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
