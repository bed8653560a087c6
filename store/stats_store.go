package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/utils"
)

const (
	dateLayout    = "2006-01-02"
	statsCacheTTL = 5 * time.Minute
)

// DayCount is one point of a series, encoded as ["YYYY-MM-DD", n].
type DayCount struct {
	Date  string
	Count int64
}

func (d DayCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Date, d.Count})
}

func (d *DayCount) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("day count must be a [date, count] pair")
	}
	if err := json.Unmarshal(pair[0], &d.Date); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &d.Count)
}

type CalendarMeta struct {
	ActivityLabel   string `json:"activity_label"`
	CompletionLabel string `json:"completion_label"`
	Scope           string `json:"scope"`
	From            string `json:"from"`
	To              string `json:"to"`
}

// CalendarStats holds the aligned activity and completion series.
type CalendarStats struct {
	Activity   []DayCount   `json:"activity"`
	Completion []DayCount   `json:"completion"`
	Meta       CalendarMeta `json:"meta"`
}

// StatsStore aggregates a user's posts per calendar day in loc.
type StatsStore struct {
	db  *gorm.DB
	loc *time.Location
}

func NewStatsStore(db *gorm.DB, loc *time.Location) *StatsStore {
	if loc == nil {
		loc = time.Local
	}
	return &StatsStore{db: db, loc: loc}
}

func statsCachePrefix(userID uint) string {
	return fmt.Sprintf("cache:stats:calendar:%d:", userID)
}

func invalidateStats(ctx context.Context, userID uint) {
	utils.InvalidateByPrefix(context.WithoutCancel(ctx), statsCachePrefix(userID))
}

func (s *StatsStore) parseDay(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, Validation(field, "required, format YYYY-MM-DD")
	}
	d, err := time.ParseInLocation(dateLayout, value, s.loc)
	if err != nil {
		return time.Time{}, Validation(field, "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// Calendar counts posts per day ("activity") and done checklist items per
// day ("completion") over the inclusive range [from, to]. Activity only
// lists days with posts; completion covers the same days, zero-filled.
func (s *StatsStore) Calendar(ctx context.Context, userID uint, from, to string) (*CalendarStats, error) {
	start, err := s.parseDay("from", from)
	if err != nil {
		return nil, err
	}
	end, err := s.parseDay("to", to)
	if err != nil {
		return nil, err
	}
	from, to = start.Format(dateLayout), end.Format(dateLayout)

	cacheKey := fmt.Sprintf("%s%s:%s", statsCachePrefix(userID), from, to)
	var cached CalendarStats
	if utils.CacheGetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	out := &CalendarStats{
		Activity:   []DayCount{},
		Completion: []DayCount{},
		Meta: CalendarMeta{
			ActivityLabel:   "posts",
			CompletionLabel: "checklist items done",
			Scope:           "me",
			From:            from,
			To:              to,
		},
	}
	if end.Before(start) {
		return out, nil
	}

	var posts []models.Post
	err = s.db.WithContext(ctx).
		Select("id", "kind", "checklist_items", "created_at").
		Where("author_id = ? AND created_at >= ? AND created_at < ?", userID, start, end.AddDate(0, 0, 1)).
		Order("created_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, Internal(err, "load posts for stats")
	}

	activity := map[string]int64{}
	completion := map[string]int64{}
	for _, p := range posts {
		day := p.CreatedAt.In(s.loc).Format(dateLayout)
		activity[day]++
		if p.Kind != models.PostKindChecklist {
			continue
		}
		for _, it := range p.ChecklistItems {
			if it.Done {
				completion[day]++
			}
		}
	}

	days := make([]string, 0, len(activity))
	for d := range activity {
		days = append(days, d)
	}
	for d := range completion {
		if _, ok := activity[d]; !ok {
			days = append(days, d)
		}
	}
	sort.Strings(days)
	for _, d := range days {
		if n, ok := activity[d]; ok {
			out.Activity = append(out.Activity, DayCount{Date: d, Count: n})
		}
		out.Completion = append(out.Completion, DayCount{Date: d, Count: completion[d]})
	}

	utils.CacheSetJSON(ctx, cacheKey, out, statsCacheTTL)
	return out, nil
}
