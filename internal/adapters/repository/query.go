package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/platewatch/internal/domain/model"
)

// Query limits.
const (
	DefaultLimit = 20
	MinLimit     = 5
	MaxLimit     = 100
)

// Sort keys accepted by Query.
const (
	SortPlateText      = "plate_text"
	SortConfidence     = "confidence"
	SortDetectionCount = "detection_count"
	SortFirstSeen      = "first_seen"
	SortLastSeen       = "last_seen"
)

// Query returns one page of records matching q.
func (l *Ledger) Query(_ context.Context, q Query) (Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page{}, fmt.Errorf("%w: status %q", ErrInvalidQuery, q.Status)
	}
	q = normalizeQuery(q)
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	l.mu.Lock()
	matched := make([]model.PlateRecord, 0, len(l.byText))
	for _, e := range l.byText {
		if q.Status != "" && e.rec.Status != q.Status {
			continue
		}
		if needle != "" && !matches(&e.rec, needle) {
			continue
		}
		matched = append(matched, e.rec.Clone())
	}
	l.mu.Unlock()

	sortRecords(matched, q.SortBy, q.Desc)

	total := len(matched)
	pages := (total + q.Limit - 1) / q.Limit
	from := (q.Page - 1) * q.Limit
	to := from + q.Limit
	if from > total {
		from = total
	}
	if to > total {
		to = total
	}
	return Page{
		Records:    matched[from:to],
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: pages,
		HasNext:    q.Page < pages,
		HasPrev:    q.Page > 1,
	}, nil
}

func normalizeQuery(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < MinLimit:
		q.Limit = MinLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	switch q.SortBy {
	case SortPlateText, SortConfidence, SortDetectionCount, SortFirstSeen, SortLastSeen:
	default:
		q.SortBy = SortLastSeen
	}
	return q
}

func matches(rec *model.PlateRecord, needle string) bool {
	for _, field := range []string{
		rec.Text, rec.FirstLocation, rec.LatestLocation,
		string(rec.Status), rec.Notes, rec.FlagReason,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// sortRecords orders by key, falling back to text so pages are stable.
func sortRecords(records []model.PlateRecord, key string, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		var cmp int
		switch key {
		case SortPlateText:
			cmp = strings.Compare(a.Text, b.Text)
		case SortConfidence:
			cmp = compareFloat(a.BestConfidence, b.BestConfidence)
		case SortDetectionCount:
			cmp = a.DetectionCount - b.DetectionCount
		case SortFirstSeen:
			cmp = a.FirstSeen.Compare(b.FirstSeen)
		default:
			cmp = a.LastSeen.Compare(b.LastSeen)
		}
		if cmp == 0 {
			return a.Text < b.Text
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Stats summarises the table. SeenToday counts records last seen on the same
// calendar day as now, in now's location.
func (l *Ledger) Stats(_ context.Context, now time.Time) Stats {
	y, m, d := now.Date()
	loc := now.Location()

	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	var confSum float64
	for _, e := range l.byText {
		rec := &e.rec
		s.Total++
		s.TotalDetections += rec.DetectionCount
		confSum += rec.BestConfidence
		switch rec.Status {
		case model.StatusVerified:
			s.Verified++
		case model.StatusFlagged:
			s.Flagged++
		default:
			s.Detected++
		}
		ly, lm, ld := rec.LastSeen.In(loc).Date()
		if ly == y && lm == m && ld == d {
			s.SeenToday++
		}
	}
	if s.Total > 0 {
		s.AverageConfidence = confSum / float64(s.Total)
	}
	return s
}
