package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/thebeat/internal/beat"
)

// statusDisplay renders session updates as lines on a terminal.
// Implements session.Display.
type statusDisplay struct {
	mu  sync.Mutex
	w   io.Writer
	fmt string

	label  lipgloss.Style
	value  lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
}

func newStatusDisplay(w io.Writer, format string) *statusDisplay {
	r := lipgloss.NewRenderer(w)
	return &statusDisplay{
		w:      w,
		fmt:    format,
		label:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		value:  r.NewStyle().Foreground(lipgloss.Color("229")),
		header: r.NewStyle().Bold(true).Underline(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// VolumeChanged prints the new shared level.
func (d *statusDisplay) VolumeChanged(levelDB float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fmt == "json" {
		writeJSONLine(d.w, map[string]any{"event": "volume", "level_db": levelDB})
		return
	}
	fmt.Fprintln(d.w, d.label.Render("volume")+" "+d.value.Render(fmt.Sprintf("%.1f dB", levelDB)))
}

// ParticipantsChanged prints the participant table.
func (d *statusDisplay) ParticipantsChanged(views []beat.View) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fmt == "json" {
		rows := make([]map[string]any, len(views))
		for i, v := range views {
			rows[i] = map[string]any{"id": v.ID, "bpm": v.BPM, "cue": v.CueID}
		}
		writeJSONLine(d.w, map[string]any{"event": "participants", "participants": rows})
		return
	}

	if len(views) == 0 {
		fmt.Fprintln(d.w, d.muted.Render("no participants"))
		return
	}

	width := len("participant")
	for _, v := range views {
		if len(v.ID) > width {
			width = len(v.ID)
		}
	}

	var b strings.Builder
	b.WriteString(d.header.Render(fmt.Sprintf("%-*s  %5s  %s", width, "participant", "bpm", "cue")))
	b.WriteByte('\n')
	for _, v := range views {
		fmt.Fprintf(&b, "%-*s  %s  %s\n",
			width, v.ID,
			d.value.Render(fmt.Sprintf("%5.0f", v.BPM)),
			d.muted.Render(v.CueID))
	}
	fmt.Fprint(d.w, b.String())
}
