package core

import (
	"sort"
	"strconv"
	"time"
)

// MonthLabelLayout renders a creation month as "Jan 24".
const MonthLabelLayout = "Jan 06"

// Counts tallies projects by status.
type Counts struct {
	Total     int
	Ongoing   int
	Pending   int
	Completed int
}

// Bucket is one bar of a histogram.
type Bucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// History is the aggregate view of a project list.
type History struct {
	Counts  Counts
	Monthly []Bucket
	Yearly  []Bucket
}

// Aggregate tallies projects by status at now and histograms them by the
// month and year of CreatedAt, read in now's location. Buckets keep the
// order in which their label was first seen in projects, not calendar order.
func Aggregate(projects []Project, now time.Time) History {
	h := History{Counts: Counts{Total: len(projects)}}
	loc := now.Location()
	monthIdx := make(map[string]int)
	yearIdx := make(map[string]int)

	for _, p := range projects {
		switch p.Status(now) {
		case StatusPending:
			h.Counts.Pending++
		case StatusCompleted:
			h.Counts.Completed++
		default:
			h.Counts.Ongoing++
		}

		created := p.CreatedAt.In(loc)
		h.Monthly = addToBucket(h.Monthly, monthIdx, created.Format(MonthLabelLayout))
		h.Yearly = addToBucket(h.Yearly, yearIdx, strconv.Itoa(created.Year()))
	}
	return h
}

func addToBucket(buckets []Bucket, idx map[string]int, name string) []Bucket {
	if i, ok := idx[name]; ok {
		buckets[i].Count++
		return buckets
	}
	idx[name] = len(buckets)
	return append(buckets, Bucket{Name: name, Count: 1})
}

// MaxCount returns the largest bucket count, for chart scaling.
func MaxCount(buckets []Bucket) int {
	m := 0
	for _, b := range buckets {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// FilterByStatus keeps projects whose status at now is s, in input order.
func FilterByStatus(projects []Project, s Status, now time.Time) []Project {
	var out []Project
	for _, p := range projects {
		if p.Status(now) == s {
			out = append(out, p)
		}
	}
	return out
}

// SortByStartDesc orders projects by start date, latest first. Ties keep
// their input order.
func SortByStartDesc(projects []Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].StartDate.After(projects[j].StartDate.Time)
	})
}
