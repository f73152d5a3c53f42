package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
)

// =============================================================================
// Palette
// =============================================================================

// ANSI 256 colors; lipgloss degrades them on limited terminals.
var (
	colorAccent = lipgloss.Color("36")  // teal
	colorOK     = lipgloss.Color("35")  // green
	colorWarn   = lipgloss.Color("220") // amber
	colorFail   = lipgloss.Color("167") // soft red
	colorLink   = lipgloss.Color("75")  // light blue
	colorText   = lipgloss.Color("255")
	colorLabel  = lipgloss.Color("245")
	colorMuted  = lipgloss.Color("240")
)

// Exported styles are shared with command output that formats its own lines.
var (
	StyleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	StyleLink   = lipgloss.NewStyle().Foreground(colorLink).Underline(true)
	StyleDim    = lipgloss.NewStyle().Foreground(colorMuted)
	StyleNumber = lipgloss.NewStyle().Foreground(colorAccent)
)

var (
	styleValue       = lipgloss.NewStyle().Foreground(colorText)
	styleLabel       = lipgloss.NewStyle().Foreground(colorLabel).Width(14)
	styleCommand     = lipgloss.NewStyle().Foreground(colorLink)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorAccent)
)

// marker is the leading glyph of a status line.
type marker struct {
	glyph string
	style lipgloss.Style
	body  *lipgloss.Style // optional style for the message itself
}

var (
	warnBody = lipgloss.NewStyle().Foreground(colorWarn)

	markOK   = marker{"✓", lipgloss.NewStyle().Foreground(colorOK), nil}
	markFail = marker{"✗", lipgloss.NewStyle().Foreground(colorFail), nil}
	markWarn = marker{"!", lipgloss.NewStyle().Foreground(colorWarn), &warnBody}
	markInfo = marker{"›", lipgloss.NewStyle().Foreground(colorLabel), nil}
)

// line renders one status line: glyph, space, message.
func (m marker) line(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if m.body != nil {
		msg = m.body.Render(msg)
	}
	return m.style.Render(m.glyph) + " " + msg
}

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) { fmt.Println(markOK.line(format, args...)) }
func printError(format string, args ...any)   { fmt.Println(markFail.line(format, args...)) }
func printWarning(format string, args ...any) { fmt.Println(markWarn.line(format, args...)) }
func printInfo(format string, args ...any)    { fmt.Println(markInfo.line(format, args...)) }

// printDetail prints an indented, muted line under a status line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile announces a written output file.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render("→") + " " + styleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Println(styleLabel.Render(key) + " " + styleValue.Render(value))
}

// printNextStep suggests a follow-up command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Conversion Stats
// =============================================================================

// statsLine summarizes a conversion on one line. Per-set counts come from
// the assembly and are not known for cached collections.
func statsLine(coll *cells.Collection, cached bool) string {
	parts := []string{fmt.Sprintf("%d cells", coll.Len())}
	if !cached {
		for _, s := range coll.Stats.Sets {
			parts = append(parts, fmt.Sprintf("%d %s polygons", s.Polygons, s.Role))
		}
		if coll.Stats.Shared > 0 {
			parts = append(parts, fmt.Sprintf("%d with both", coll.Stats.Shared))
		}
	}

	source := lipgloss.NewStyle().Foreground(colorLabel).Render("fresh")
	if cached {
		source = lipgloss.NewStyle().Foreground(colorOK).Render("cached")
	}

	sep := StyleDim.Render(" · ")
	rendered := make([]string, len(parts))
	for i, p := range parts {
		rendered[i] = StyleDim.Render(p)
	}
	return "  " + strings.Join(rendered, sep) + sep + source
}

func printStats(coll *cells.Collection, cached bool) {
	fmt.Println(statsLine(coll, cached))
}
