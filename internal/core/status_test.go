package core

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	dhaka := time.FixedZone("BST", 6*60*60)
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, dhaka)

	cases := []struct {
		name       string
		start, end Date
		want       Status
	}{
		{"starts tomorrow", NewDate(2024, 3, 11), NewDate(2024, 4, 1), StatusPending},
		{"starts today", NewDate(2024, 3, 10), NewDate(2024, 4, 1), StatusOngoing},
		{"ends today", NewDate(2024, 3, 1), NewDate(2024, 3, 10), StatusOngoing},
		{"ended yesterday", NewDate(2024, 3, 1), NewDate(2024, 3, 9), StatusCompleted},
		{"open ended", NewDate(2024, 3, 1), Date{}, StatusOngoing},
		{"no start, ended", Date{}, NewDate(2024, 1, 1), StatusCompleted},
		{"no dates", Date{}, Date{}, StatusOngoing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.start, tc.end, now); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	for s := -3; s <= 3; s++ {
		for e := -3; e <= 3; e++ {
			start := NewDate(2024, 6, 15+s)
			end := NewDate(2024, 6, 15+e)
			switch Classify(start, end, now) {
			case StatusPending, StatusOngoing, StatusCompleted:
			default:
				t.Fatalf("no status for start=%s end=%s", start, end)
			}
		}
	}
}
