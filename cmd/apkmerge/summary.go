package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"apkmerge/cmd/apkmerge/ui"
	"apkmerge/internal/pipeline"
)

// renderSummary renders the stage history and per-split reconciliation
// counts of a run.
func renderSummary(r *pipeline.Report) string {
	styles := ui.DefaultStyles()
	var sb strings.Builder

	stages := ui.NewTable("Stages", "stage", "status", "elapsed")
	for _, s := range r.Stages {
		status := string(s.Status)
		switch s.Status {
		case pipeline.StatusCompleted:
			status = styles.Completed.Render(status)
		case pipeline.StatusFailed:
			status = styles.Failed.Render(status)
		case pipeline.StatusSkipped:
			status = styles.Skipped.Render(status)
		}
		stages.AddRow(string(s.Stage), status, s.Duration.Round(time.Millisecond).String())
	}
	sb.WriteString(stages.View(styles))

	if r.Passthrough {
		sb.WriteString(styles.Rule.Render(fmt.Sprintf("single archive %s copied to %s", r.Base.Name, r.Destination)))
		sb.WriteString("\n")
		return sb.String()
	}

	if r.Reconcile != nil {
		splits := ui.NewTable("Splits", "split", "new", "consistent", "conflicts", "split renames", "base renames", "rewritten", "moved", "collisions")
		for _, s := range r.Reconcile.Splits {
			splits.AddRow(s.Name,
				strconv.Itoa(s.New),
				strconv.Itoa(s.Consistent),
				strconv.Itoa(s.Conflicts),
				strconv.Itoa(s.SplitRenames),
				strconv.Itoa(s.BaseRenames),
				strconv.Itoa(s.Rewrite.Changed),
				strconv.Itoa(s.Merge.Moved),
				strconv.Itoa(s.Merge.Collisions))
		}
		sb.WriteString("\n")
		sb.WriteString(splits.View(styles))
		sb.WriteString(fmt.Sprintf("\nbase: %d renames, %d documents rewritten\n",
			r.Reconcile.BaseRules, r.Reconcile.BaseRewrite.Changed))
	}

	backend := "aapt"
	if r.UseAapt2 {
		backend = "aapt2"
	}
	sb.WriteString(fmt.Sprintf("styles deduplicated: %d, manifest meta-data removed: %d, backend: %s\n",
		r.StylesRemoved, r.Manifest.MetaDataRemoved, backend))
	return sb.String()
}
