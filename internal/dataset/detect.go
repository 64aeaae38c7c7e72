package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Layouts tried, in order, when sniffing datetime columns. A column is a
// datetime column only when every non-missing cell parses with one layout.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"2006-01",
	"Jan-2006",
	"January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

func isMissing(s string) bool {
	return missingTokens[s]
}

// detectType classifies a column from its cells. Numbers win over dates so
// that integer years stay numeric.
func detectType(cells []string) (ColumnType, string) {
	present := 0
	numeric := true
	for _, s := range cells {
		if isMissing(s) {
			continue
		}
		present++
		if numeric {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				numeric = false
			}
		}
	}

	if present == 0 {
		return TypeCategorical, ""
	}
	if numeric {
		return TypeNumeric, ""
	}
	if layout := detectLayout(cells); layout != "" {
		return TypeDatetime, layout
	}
	return TypeCategorical, ""
}

// detectLayout returns the first layout that parses every non-missing cell,
// or "" when there is none.
func detectLayout(cells []string) string {
	for _, layout := range dateLayouts {
		ok, present := true, 0
		for _, s := range cells {
			if isMissing(s) {
				continue
			}
			present++
			if _, err := time.Parse(layout, strings.TrimSpace(s)); err != nil {
				ok = false
				break
			}
		}
		if ok && present > 0 {
			return layout
		}
	}
	return ""
}
