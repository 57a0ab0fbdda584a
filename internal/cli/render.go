package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/nourish/internal/artifacts"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/model"
	"github.com/Veraticus/nourish/internal/training"
)

// RenderPrediction formats a recommendation for the terminal.
func RenderPrediction(p *model.Prediction) string {
	lines := []string{
		BoldStyle.Render("Meal plan:") + " " + p.MealPlan,
		FormatMacro("Calories", p.Calories, "kcal", 0),
		FormatMacro("Protein", p.Protein, "g", 1),
		FormatMacro("Carbs", p.Carbs, "g", 1),
		FormatMacro("Fats", p.Fats, "g", 1),
	}
	if p.UserID != "" {
		lines = append(lines, SubtleStyle.Render("user "+p.UserID))
	}
	if p.ModelVersion != "" {
		lines = append(lines, SubtleStyle.Render("model "+p.ModelVersion))
	}
	return RenderBox(PlateIcon+" Recommendation", strings.Join(lines, "\n"))
}

// RenderTrainingReport summarises a training run.
func RenderTrainingReport(r training.Report, dir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Rows: %d (%d train, %d held out)\n", ChartIcon, r.Rows, r.TrainRows, r.TestRows)
	fmt.Fprintf(&b, "  Features: %d\n", r.Features)
	fmt.Fprintf(&b, "  Time taken: %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Metrics) > 0 {
		b.WriteString("\n")
		rows := [][]string{{"Output", "MAE", "R²"}}
		for _, name := range sortedKeys(r.Metrics) {
			m := r.Metrics[name]
			rows = append(rows, []string{name, fmt.Sprintf("%.3f", m.MAE), fmt.Sprintf("%.3f", m.R2)})
		}
		rows = append(rows, []string{"overall", fmt.Sprintf("%.3f", r.Overall.MAE), fmt.Sprintf("%.3f", r.Overall.R2)})
		b.WriteString(renderTable(rows))
	}

	if len(r.Events) > 0 {
		b.WriteString("\n" + SubtleStyle.Render("Defaults applied during training:") + "\n")
		kinds := make([]string, 0, len(r.Events))
		for k := range r.Events {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "  • %s: %d\n", k, r.Events[encoding.EventKind(k)])
		}
	}

	if dir != "" {
		b.WriteString("\n" + FormatSuccess(fmt.Sprintf("Bundle written to %s", dir)))
	}
	return b.String()
}

// RenderManifest describes a bundle on disk.
func RenderManifest(m artifacts.Manifest, version string) string {
	lines := []string{
		fmt.Sprintf("Version:  %s (format %d)", version, m.Version),
		fmt.Sprintf("Created:  %s", m.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Features: %d", m.FeatureCount),
		fmt.Sprintf("Outputs:  %s", strings.Join(m.Outputs, ", ")),
		fmt.Sprintf("Trees:    %d per output", m.Training.Trees),
	}
	if m.Training.Dataset != "" {
		lines = append(lines, "Dataset:  "+m.Training.Dataset)
	}
	if len(m.Training.OneHot) > 0 {
		lines = append(lines, "One-hot:  "+strings.Join(m.Training.OneHot, ", "))
	}
	return RenderBox(FolderIcon+" Model bundle", strings.Join(lines, "\n"))
}

// RenderEncoders lists every encoder's classes with their codes. The
// fallback class is marked with an asterisk.
func RenderEncoders(reg *encoding.Registry) string {
	var b strings.Builder
	for _, field := range reg.Fields() {
		enc, ok := reg.Encoder(field)
		if !ok {
			continue
		}
		b.WriteString(BoldStyle.Render(field) + "\n")
		for code, class := range enc.Classes() {
			marker := " "
			if code == enc.Fallback() {
				marker = "*"
			}
			fmt.Fprintf(&b, "  %s %2d  %s\n", marker, code, class)
		}
	}
	b.WriteString(SubtleStyle.Render("* fallback for unseen values"))
	return b.String()
}

// RenderHistory formats stored predictions as a table.
func RenderHistory(preds []model.StoredPrediction) string {
	if len(preds) == 0 {
		return FormatInfo("No predictions recorded yet")
	}
	rows := [][]string{{"When", "User", "Meal plan", "kcal", "Protein", "Carbs", "Fats"}}
	for _, p := range preds {
		user := p.UserID
		if user == "" {
			user = "-"
		}
		rows = append(rows, []string{
			p.CreatedAt.Local().Format("2006-01-02 15:04"),
			user,
			p.MealPlan,
			fmt.Sprintf("%.0f", p.Calories),
			fmt.Sprintf("%.1f", p.Protein),
			fmt.Sprintf("%.1f", p.Carbs),
			fmt.Sprintf("%.1f", p.Fats),
		})
	}
	return renderTable(rows)
}

// Println writes a rendered block followed by a newline.
func Println(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

func renderTable(rows [][]string) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
		if r == 0 {
			line = TableHeaderStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n") + "\n"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
