package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"funnelmetrics/internal/comparison"
	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/rollup"
)

// reportColumns are the metrics shown per node, each followed by its variance.
var reportColumns = []string{metrics.Leads, metrics.Sales, metrics.Spend, metrics.Revenue, metrics.ROAS, metrics.ConversionRate}

func renderSubmit(w io.Writer, res *dashboard.SubmitResult, dryRun bool) {
	verb := "Stored"
	if dryRun {
		verb = "Dry run for"
	}
	fmt.Fprintf(w, "%s %s over %s (%d days): %d created, %d updated\n",
		verb, res.Entity, res.Period, len(res.Days), res.Created, res.Updated)
	for _, msg := range res.WarningMessages() {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tLeads\tSales\tSpend\tRevenue\tROAS\t")
	for _, d := range res.Days {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%.2f\t\n",
			d.Date.Format(period.DateLayout),
			d.Counters.Leads,
			d.Counters.Sales,
			d.Counters.Spend.StringFixed(2),
			d.Counters.Revenue.StringFixed(2),
			d.Derived.ROAS)
	}
	tw.Flush()
}

func renderReport(w io.Writer, report *dashboard.HierarchyReport) {
	fmt.Fprintf(w, "Period %s compared with %s\n", report.Period, report.Previous)
	if report.Department != "" {
		fmt.Fprintf(w, "Department: %s\n", label(string(report.Department)))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"Entity"}
	for _, col := range reportColumns {
		header = append(header, label(col), "Δ")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, row := range rollup.Flatten(report.Root) {
		cells := []string{strings.Repeat("  ", row.Depth) + nodeLabel(row.Node)}
		for _, col := range reportColumns {
			v, _ := row.Node.Summary.Value(col)
			cells = append(cells, formatValue(col, v), formatVariance(row.Node.Comparison, col))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
}

// label turns a snake_case name into a title, e.g. ad_set becomes "Ad Set".
func label(name string) string {
	caser := cases.Title(language.AmericanEnglish)
	return caser.String(strings.ReplaceAll(name, "_", " "))
}

func nodeLabel(n *rollup.Node) string {
	return fmt.Sprintf("%s %s", label(string(n.Type)), n.Name)
}

func formatValue(metric string, v float64) string {
	switch metric {
	case metrics.Leads, metrics.Sales:
		return fmt.Sprintf("%.0f", v)
	case metrics.ConversionRate:
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func formatVariance(report comparison.Report, metric string) string {
	res, ok := report[metric]
	if !ok || res.VariancePct == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *res.VariancePct)
}
