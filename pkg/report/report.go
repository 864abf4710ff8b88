// Package report renders stored runs as plain-text tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	taskWidth  = 60
	shaWidth   = 8
)

// Runs writes one row per run with its task and success counts.
func Runs(w io.Writer, runs []*api.Run) {
	table := newTable(w)
	table.SetHeader([]string{"Run ID", "Timestamp", "Git SHA", "Tasks", "Succeeded", "Metric"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for _, run := range runs {
		table.Append([]string{
			run.RunID,
			run.Timestamp.Local().Format(timeLayout),
			shortSHA(run.GitSHA),
			strconv.Itoa(len(run.Tasks)),
			strconv.Itoa(succeeded(run.Tasks)),
			strconv.Itoa(run.Metric()),
		})
	}

	table.SetFooter([]string{fmt.Sprintf("%d runs", len(runs)), "", "", "", "", ""})
	table.Render()
}

// Tasks writes one row per task of run, with a totals footer.
func Tasks(w io.Writer, run *api.Run) {
	if run.CommitMessage != "" || run.GitSHA != "" {
		fmt.Fprintf(w, "Run %s at %s (%s)\n\n", run.RunID, shortSHA(run.GitSHA), firstLine(run.CommitMessage))
	} else {
		fmt.Fprintf(w, "Run %s\n\n", run.RunID)
	}

	table := newTable(w)
	table.SetHeader([]string{"Task", "Metric", "Attempts", "Succeeded", "Time"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT,
	})

	for _, t := range run.Tasks {
		table.Append([]string{
			debug.Truncate(firstLine(t.Task), taskWidth),
			strconv.Itoa(t.Metric),
			strconv.Itoa(len(t.GenerationAttempts)),
			yesNo(t.Succeeded),
			t.Time.Local().Format(timeLayout),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("%d tasks", len(run.Tasks)),
		strconv.Itoa(run.Metric()),
		"",
		fmt.Sprintf("%d/%d", succeeded(run.Tasks), len(run.Tasks)),
		"",
	})
	table.Render()
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	return table
}

func succeeded(tasks []api.TaskLog) int {
	n := 0
	for _, t := range tasks {
		if t.Succeeded {
			n++
		}
	}
	return n
}

func shortSHA(sha string) string {
	if sha == "" {
		return "-"
	}
	if len(sha) > shaWidth {
		return sha[:shaWidth]
	}
	return sha
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
