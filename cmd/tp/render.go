package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"teamplan/internal/app"
	"teamplan/internal/domain"
	"teamplan/internal/engine"
)

type reportOutput struct {
	Mode       string                      `json:"mode"`
	Strategy   string                      `json:"strategy,omitempty"`
	Fallback   bool                        `json:"fallback"`
	TotalValue float64                     `json:"totalValue"`
	DurationMS int64                       `json:"durationMs"`
	PlanID     string                      `json:"planId,omitempty"`
	Result     domain.PrioritizationResult `json:"result"`
}

func reportJSON(out app.PrioritizeOutcome) reportOutput {
	rep := out.Report
	res := reportOutput{
		Mode:       string(rep.Mode),
		Fallback:   rep.Fallback,
		TotalValue: rep.Result.TotalValue(),
		DurationMS: rep.Duration.Milliseconds(),
		Result:     rep.Result,
	}
	if rep.Mode == engine.ModeOptimized {
		res.Strategy = string(rep.Strategy)
	}
	if out.Plan != nil {
		res.PlanID = out.Plan.ID
	}
	return res
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func renderTeams(w io.Writer, teams []domain.Team) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"ID", "Name", "Capacity"})
	for _, t := range teams {
		tw.AppendRow(table.Row{t.ID, t.Name, strconv.FormatFloat(t.Capacity, 'g', -1, 64)})
	}
	tw.Render()
}

func renderProjects(w io.Writer, items []domain.Project) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"ID", "Team", "Title", "Effort", "Value", "Copy of"})
	for _, p := range items {
		origin := ""
		if p.SourceProjectID != nil {
			origin = *p.SourceProjectID
		}
		tw.AppendRow(table.Row{p.ID, p.TeamID, p.Title, num(p.Effort), num(p.Value), origin})
	}
	tw.Render()
}

func renderDependencies(w io.Writer, deps []domain.Dependency) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"Source", "", "Target"})
	for _, d := range deps {
		tw.AppendRow(table.Row{d.SourceID, "->", d.TargetID})
	}
	tw.Render()
}

func renderReport(w io.Writer, out app.PrioritizeOutcome, teams []domain.Team) {
	rep := out.Report
	header := fmt.Sprintf("Mode: %s", rep.Mode.Label())
	if rep.Mode == engine.ModeOptimized {
		header += fmt.Sprintf(" (%s)", rep.Strategy)
	}
	if rep.Fallback {
		header += " - optimizer failed, greedy result shown"
	}
	fmt.Fprintln(w, header)
	renderResult(w, rep.Result, teams)
	if out.Plan != nil {
		fmt.Fprintf(w, "Saved as plan %s\n", out.Plan.ID)
	}
}

func renderResult(w io.Writer, res domain.PrioritizationResult, teams []domain.Team) {
	sel := newTable(w, "Selected")
	sel.AppendHeader(table.Row{"#", "ID", "Team", "Title", "Effort", "Value"})
	var effort float64
	for i, p := range res.SelectedProjects {
		if p.Effort != nil {
			effort += *p.Effort
		}
		sel.AppendRow(table.Row{i + 1, p.ID, p.TeamID, p.Title, num(p.Effort), num(p.Value)})
	}
	sel.AppendFooter(table.Row{"", "", "", "Total", fnum(effort), fnum(res.TotalValue())})
	sel.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	sel.Render()

	unsel := newTable(w, "Not selected")
	unsel.AppendHeader(table.Row{"ID", "Team", "Title", "Effort", "Value", "Reason"})
	for _, p := range res.UnselectedProjects {
		reason := "does not fit"
		if !engine.Actionable(p) {
			reason = "not estimated"
		}
		unsel.AppendRow(table.Row{p.ID, p.TeamID, p.Title, num(p.Effort), num(p.Value), reason})
	}
	unsel.Render()

	capacity := make(map[string]float64, len(teams))
	for _, t := range teams {
		capacity[t.ID] = t.Capacity
	}
	ids := make([]string, 0, len(res.TeamSummaries))
	for id := range res.TeamSummaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sum := newTable(w, "Teams")
	sum.AppendHeader(table.Row{"Team", "Capacity", "Allocated", "Value", "Used"})
	for _, id := range ids {
		s := res.TeamSummaries[id]
		used := "-"
		if c := capacity[id]; c > 0 {
			used = fmt.Sprintf("%.0f%%", 100*s.Allocated/c)
		}
		sum.AppendRow(table.Row{id, fnum(capacity[id]), fnum(s.Allocated), fnum(s.Value), used})
	}
	sum.Render()
}

func renderSelectionCSV(w io.Writer, res domain.PrioritizationResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"rank", "id", "team", "title", "effort", "value"})
	for i, p := range res.SelectedProjects {
		tw.AppendRow(table.Row{i + 1, p.ID, p.TeamID, p.Title, num(p.Effort), num(p.Value)})
	}
	tw.RenderCSV()
}

func renderPlans(w io.Writer, plans []domain.Plan) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"ID", "Mode", "Selected", "Total value", "Fallback", "By", "At"})
	for _, p := range plans {
		tw.AppendRow(table.Row{p.ID, p.Mode, len(p.Result.SelectedProjects), fnum(p.TotalValue), p.Fallback, p.CreatedBy, p.CreatedAt})
	}
	tw.Render()
}

func renderEvents(w io.Writer, events []domain.Event) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
	for _, e := range events {
		entity := e.EntityKind
		if e.EntityID != "" {
			entity += ":" + e.EntityID
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.ActorID, e.Payload})
	}
	tw.Render()
}
