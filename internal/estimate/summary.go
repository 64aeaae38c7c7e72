package estimate

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// summarize renders a plain-text results table
func summarize(title, dependent string, terms []Term, stats []Statistic) string {
	var sb strings.Builder
	rule := strings.Repeat("=", 78)

	sb.WriteString(title + "\n")
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "Dep. Variable: %s\n", dependent)

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, s := range stats {
		fmt.Fprintf(tw, "%s:\t%s\t\n", s.Name, formatValue(s.Value))
	}
	tw.Flush()

	sb.WriteString(rule + "\n")
	tw = tabwriter.NewWriter(&sb, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcoef\tstd err\tt\tP>|t|\t")
	for _, t := range terms {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t\n", t.Variable, t.Coefficient, t.StdError, t.TStatistic, t.PValue)
	}
	tw.Flush()
	sb.WriteString(rule + "\n")

	return sb.String()
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprint(x)
	}
}
