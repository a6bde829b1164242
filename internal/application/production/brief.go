package production

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"flashflow-studio/internal/domain/entity"
)

const (
	briefColumnWidth = 56
	briefMaxScenes   = 8
)

// EditingStyle 剪辑风格建议
type EditingStyle struct {
	Pace  string
	Music string
	Text  string
}

var editingStyles = map[entity.ContentFormat]EditingStyle{
	entity.FormatSkit:       {Pace: "Quick cuts, jump cuts", Music: "Trending/funny", Text: "Bold with effects"},
	entity.FormatStory:      {Pace: "Smooth transitions", Music: "Calm/authentic", Text: "Minimal, clean"},
	entity.FormatReview:     {Pace: "Medium pace", Music: "Subtle background", Text: "CTA overlay bold"},
	entity.FormatTutorial:   {Pace: "B-roll with text", Music: "Background chill", Text: "Text-heavy, educational"},
	entity.FormatPOV:        {Pace: "Fast cuts", Music: "Upbeat/trending", Text: "Bold, large"},
	entity.FormatComparison: {Pace: "Split-screen cuts", Music: "Upbeat", Text: "Side-by-side labels"},
}

// StyleFor 返回内容形式对应的剪辑风格
func StyleFor(format entity.ContentFormat) EditingStyle {
	if s, ok := editingStyles[format]; ok {
		return s
	}
	return EditingStyle{Pace: "Medium", Music: "Trending", Text: "Standard"}
}

var qualityChecklist = []string{
	"Hook grabs attention in 1-3 sec",
	"Text readable on mobile",
	"Audio clean (no background noise)",
	"Product clearly visible",
	"CTA present and clear",
	"9:16 aspect ratio (vertical)",
	"Trending sound used (if specified)",
	"Video under 60 seconds",
}

// RenderBrief 渲染给剪辑的简报。job 为空时不显示任务编号和截止时间。
func RenderBrief(creative *entity.SavedCreative, job *entity.ProductionJob) (string, error) {
	cand, err := creative.DecodeCandidate()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cand.Hook) == "" && len(cand.Beats) == 0 {
		return "", fmt.Errorf("creative %s has no script content", creative.ID)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("VIDEO EDITING BRIEF")
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, WidthMin: 12},
		{Number: 2, Align: text.AlignLeft, WidthMax: briefColumnWidth},
	})

	tw.AppendRow(table.Row{"Title", creative.Title})
	tw.AppendRow(table.Row{"Brand", orNA(creative.Brand)})
	tw.AppendRow(table.Row{"Product", orNA(creative.ProductName)})
	tw.AppendRow(table.Row{"Format", orNA(string(creative.ContentFormat))})
	if job != nil {
		tw.AppendRow(table.Row{"Code", shortID(job.ID)})
		tw.AppendRow(table.Row{"Due", job.DueAt.Format("Jan 02, 2006")})
	}
	tw.AppendSeparator()

	tw.AppendRow(table.Row{"HOOK (0-3s)", orNA(cand.Hook)})
	tw.AppendSeparator()

	for i, b := range cand.Beats {
		if i == briefMaxScenes {
			tw.AppendRow(table.Row{"", fmt.Sprintf("... %d more scenes in the script", len(cand.Beats)-briefMaxScenes)})
			break
		}
		tw.AppendRow(table.Row{fmt.Sprintf("%d. %s", i+1, b.Span), sceneText(b)})
	}
	tw.AppendSeparator()

	if cand.CTALine != "" || cand.CTAOverlay != "" {
		tw.AppendRow(table.Row{"CTA", joinNonEmpty(" / overlay: ", cand.CTALine, cand.CTAOverlay)})
	}
	if len(cand.BRoll) > 0 {
		tw.AppendRow(table.Row{"B-ROLL", strings.Join(cand.BRoll, "\n")})
	}
	if len(cand.Overlays) > 0 {
		tw.AppendRow(table.Row{"OVERLAYS", strings.Join(cand.Overlays, "\n")})
	}
	tw.AppendSeparator()

	style := StyleFor(creative.ContentFormat)
	notes := []string{
		"Pace: " + style.Pace,
		"Music: " + style.Music,
		"Text: " + style.Text,
		fmt.Sprintf("Duration: %d seconds", cand.DurationSeconds()),
		"Aspect: 9:16 (vertical)",
	}
	tw.AppendRow(table.Row{"EDITING NOTES", "- " + strings.Join(notes, "\n- ")})
	tw.AppendSeparator()

	checks := make([]string, len(qualityChecklist))
	for i, item := range qualityChecklist {
		checks[i] = "[ ] " + item
	}
	tw.AppendRow(table.Row{"CHECKLIST", strings.Join(checks, "\n")})

	return tw.Render(), nil
}

func sceneText(b entity.Beat) string {
	lines := []string{"Action: " + orNA(b.Action)}
	if b.Dialogue != "" {
		lines = append(lines, "Dialogue: "+b.Dialogue)
	}
	if b.OnScreenText != "" {
		lines = append(lines, "Text: "+b.OnScreenText)
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
