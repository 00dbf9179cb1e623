// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/career-fit/internal/evaluation"
	"github.com/jonathan/career-fit/internal/pipeline"
	"github.com/jonathan/career-fit/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// barWidth is the width of a full distribution bar
	barWidth = 20
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = truncate(line, boxWidth-4)
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%5.1f%%", *v*100)
}

func bar(v float64) string {
	n := int(v*barWidth + 0.5)
	n = max(0, min(n, barWidth))
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}

// PrintProgress outputs one pipeline progress event as a single line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event pipeline.ProgressEvent) {
	fmt.Fprintf(p.out, "  [%-9s] %-13s %s\n", event.Stage, event.Step, event.Message)
}

// PrintUploadStatus outputs the state of an upload.
func (p *Printer) PrintUploadStatus(st *types.UploadStatus) {
	if st == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Upload:   %s\n", st.UploadID))
	sb.WriteString(fmt.Sprintf("Session:  %s\n", st.SessionID))
	sb.WriteString(fmt.Sprintf("Kind:     %s\n", st.Kind))
	sb.WriteString(fmt.Sprintf("Status:   %s", st.Stage))
	if st.Detail != "" {
		sb.WriteString(fmt.Sprintf("\nDetail:   %s", st.Detail))
	}
	if st.Error != "" {
		sb.WriteString(fmt.Sprintf("\nError:    %s", st.Error))
	}

	p.printBox("UPLOAD STATUS", sb.String())
}

// PrintDistribution outputs the role-fit distribution of a session as bars.
func (p *Printer) PrintDistribution(view *types.ClusterView) {
	if view == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session:  %s (generation %d)\n", view.SessionID, view.Generation))
	sb.WriteString(fmt.Sprintf("Mode:     %s\n\n", view.Mode))

	if view.Distribution.IsZero() {
		sb.WriteString("No classified evidence found")
	} else {
		for i, role := range types.AllRoles() {
			v := view.Distribution.Get(role)
			sb.WriteString(fmt.Sprintf("%-4s %s %s", role, bar(v), pct(&v)))
			if i < len(types.AllRoles())-1 {
				sb.WriteString("\n")
			}
		}
	}
	if view.Incomplete {
		sb.WriteString(fmt.Sprintf("\n\n⚠ extraction incomplete: %s", view.IncompleteReason))
	}

	p.printBox("ROLE-FIT DISTRIBUTION", sb.String())
}

// PrintClusters outputs the top evidence items of each cluster.
func (p *Printer) PrintClusters(view *types.ClusterView) {
	if view == nil || len(view.Clusters) == 0 {
		return
	}

	var sb strings.Builder
	for gi, group := range view.Clusters {
		weight := group.Weight
		sb.WriteString(fmt.Sprintf("%s  %s  %s\n", group.Role, group.Label, strings.TrimSpace(pct(&weight))))

		count := min(len(group.Items), maxItemsToShow)
		for i := 0; i < count; i++ {
			unit := group.Items[i]
			tier := "-"
			if t := unit.BestTier(group.Role); t != types.TierNone {
				tier = fmt.Sprintf("T%d", t)
			}
			sb.WriteString(fmt.Sprintf("  • [%s] %s\n", tier, unit.Text))
		}
		if len(group.Items) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(group.Items)-maxItemsToShow))
		}
		if gi < len(view.Clusters)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("EVIDENCE CLUSTERS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMatch outputs per-cluster and overall match against a job description.
func (p *Printer) PrintMatch(match *types.MatchResult) {
	if match == nil {
		return
	}

	var sb strings.Builder
	if match.JDRef != "" {
		sb.WriteString(fmt.Sprintf("Job description: %s\n", match.JDRef))
	}
	sb.WriteString(fmt.Sprintf("Method:          %s\n\n", match.Debug.Method))

	for _, cm := range match.PerCluster {
		sb.WriteString(fmt.Sprintf("%-4s weight %s  match %s\n", cm.Role, pct(types.Float(cm.Weight)), pct(cm.MatchPct)))
	}
	sb.WriteString(fmt.Sprintf("\nOverall: %s", strings.TrimSpace(pct(match.Overall))))
	if match.Reason != "" {
		sb.WriteString(fmt.Sprintf("\nReason:  %s", match.Reason))
	}

	p.printBox("CLUSTER MATCH", sb.String())
	if match.Analysis != nil {
		p.printAnalysis(match.Analysis)
	}
}

func (p *Printer) printAnalysis(a *types.FitAnalysis) {
	var sb strings.Builder
	for _, rec := range a.RecommendedRoles {
		sb.WriteString(fmt.Sprintf("%-4s %s\n", rec.Role, pct(types.Float(rec.Score))))
		for _, reason := range rec.Reasons {
			sb.WriteString(fmt.Sprintf("  • %s\n", reason))
		}
	}
	sections := []struct {
		title string
		items []string
	}{
		{"Must have", a.Requirements.MustHave},
		{"Nice to have", a.Requirements.NiceToHave},
		{"Matched", a.Gap.Matched},
		{"Missing", a.Gap.Missing},
		{"Questions", a.Gap.AskUserQuestions},
	}
	for _, sec := range sections {
		if len(sec.items) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s:\n", sec.title))
		for _, item := range sec.items {
			sb.WriteString(fmt.Sprintf("  • %s\n", item))
		}
	}

	p.printBox("FIT ANALYSIS", strings.Trim(sb.String(), "\n"))
}

// PrintSearchResults outputs job description search hits.
func (p *Printer) PrintSearchResults(query string, hits []types.ScoredChunk) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Query: %s\n", query))
	if len(hits) == 0 {
		sb.WriteString("\nNo matching job description chunks")
		p.printBox("JOB DESCRIPTION SEARCH", sb.String())
		return
	}

	sb.WriteString(fmt.Sprintf("Hits:  %d\n", len(hits)))
	for _, h := range hits {
		role := string(h.Chunk.Role)
		if role == "" {
			role = "-"
		}
		sb.WriteString(fmt.Sprintf("\n%.3f  %s (%s)\n", h.Score, h.Chunk.DocID, role))
		sb.WriteString(fmt.Sprintf("       %s", strings.Join(strings.Fields(h.Chunk.Text), " ")))
	}

	p.printBox("JOB DESCRIPTION SEARCH", sb.String())
}

// PrintEvaluation outputs a distribution comparison.
func (p *Printer) PrintEvaluation(report evaluation.Report) {
	var sb strings.Builder
	for _, role := range types.AllRoles() {
		sb.WriteString(fmt.Sprintf("%-4s expected %s  actual %s\n", role,
			pct(types.Float(report.Expected.Get(role))), pct(types.Float(report.Actual.Get(role)))))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("L1 overall:  %.3f\n", report.L1))
	sb.WriteString(fmt.Sprintf("L1 primary:  %.3f (%s)\n", report.PrimaryL1, report.PrimaryRole))

	verdict := "✅ PASS"
	switch report.Grade {
	case evaluation.GradeWarn:
		verdict = "⚠ WARN"
	case evaluation.GradeFail:
		verdict = "❌ FAIL"
	}
	sb.WriteString(fmt.Sprintf("Result:      %s", verdict))

	p.printBox("DISTRIBUTION EVALUATION", sb.String())
}

// PrintDirection outputs how one role's share moved between two distributions.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintDirection(role types.RoleID, delta float64, got, want evaluation.Direction, holds bool) {
	verdict := "✅"
	if !holds {
		verdict = "❌"
	}
	fmt.Fprintf(p.out, "%s %s share %+.3f (%s), expected %s\n", verdict, role, delta, got, want)
}
