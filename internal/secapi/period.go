package secapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var monthNames = [12]string{"jan", "feb", "maa", "apr", "mei", "jun", "jul", "aug", "sep", "okt", "nov", "dec"}

// Period is a catalog reporting period. Month holds the Dutch abbreviation
// the API expects.
type Period struct {
	Month string `json:"maand"`
	Year  int    `json:"jaar"`
}

// PeriodOf returns the reporting period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: monthNames[t.Month()-1], Year: t.Year()}
}

// MonthNumber returns the 1-based month of the period, or 0 if unknown.
func (p Period) MonthNumber() int {
	for i, name := range monthNames {
		if name == p.Month {
			return i + 1
		}
	}
	return 0
}

// Previous returns the period one month earlier, rolling over the year.
func (p Period) Previous() Period {
	m := p.MonthNumber()
	if m <= 1 {
		return Period{Month: monthNames[11], Year: p.Year - 1}
	}
	return Period{Month: monthNames[m-2], Year: p.Year}
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

// UnmarshalJSON accepts the month as an abbreviation, a full Dutch name or a
// number, and the year as a number or numeric string.
func (p *Period) UnmarshalJSON(data []byte) error {
	var raw struct {
		Maand json.RawMessage `json:"maand"`
		Jaar  json.RawMessage `json:"jaar"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	month, err := scalar(raw.Maand)
	if err != nil {
		return fmt.Errorf("maand: %w", err)
	}
	if n, err := strconv.Atoi(month); err == nil {
		if n < 1 || n > 12 {
			return fmt.Errorf("maand: %d out of range", n)
		}
		p.Month = monthNames[n-1]
	} else {
		month = strings.ToLower(month)
		if len(month) > 3 {
			month = month[:3]
		}
		if month == "maa" || month == "mrt" {
			month = "maa"
		}
		p.Month = month
		if p.MonthNumber() == 0 {
			return fmt.Errorf("maand: unknown month %q", month)
		}
	}

	year, err := scalar(raw.Jaar)
	if err != nil {
		return fmt.Errorf("jaar: %w", err)
	}
	p.Year, err = strconv.Atoi(year)
	if err != nil {
		return fmt.Errorf("jaar: %w", err)
	}
	return nil
}

func scalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
