package core

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// frMonths holds the first three letters of the French short month names, capitalized.
var frMonths = [12]string{"Jan", "Fév", "Mar", "Avr", "Mai", "Jui", "Jui", "Aoû", "Sep", "Oct", "Nov", "Déc"}

// ParseDate accepts an ISO-8601 date, with or without a time part.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FormatDate renders an ISO date as "4 Avr. 04". Unparseable input is returned as is.
func FormatDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	year := strconv.Itoa(t.Year())
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return strconv.Itoa(t.Day()) + " " + frMonths[t.Month()-1] + ". " + year
}

// SortByDateDesc returns a copy of bills ordered most recent first.
// Equal dates keep their input order; unparseable dates go last in input order.
func SortByDateDesc(bills []Bill) []Bill {
	type keyed struct {
		bill Bill
		at   time.Time
		ok   bool
	}
	items := make([]keyed, len(bills))
	for i, b := range bills {
		t, err := ParseDate(b.Date)
		items[i] = keyed{bill: b, at: t, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		return a.at.After(b.at)
	})
	out := make([]Bill, len(items))
	for i, it := range items {
		out[i] = it.bill
	}
	return out
}

// StatusCounts aggregates bills per review outcome.
type StatusCounts struct {
	Pending  int
	Accepted int
	Refused  int
}

func CountStatuses(bills []Bill) StatusCounts {
	var c StatusCounts
	for _, b := range bills {
		switch b.Status {
		case StatusPending:
			c.Pending++
		case StatusAccepted:
			c.Accepted++
		case StatusRefused:
			c.Refused++
		}
	}
	return c
}
