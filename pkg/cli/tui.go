package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/haivivi/giztalk/pkg/projection"
)

// Theme defines the color scheme.
type Theme struct {
	Primary   lipgloss.Color // Titles and borders
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Dim       lipgloss.Color // Status and help text
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary:   lipgloss.Color("#00ff9f"),
	Assistant: lipgloss.Color("#58a6ff"),
	Error:     lipgloss.Color("#ff5f5f"),
	Dim:       lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Border    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Error     lipgloss.Style
	Help      lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:    lipgloss.NewStyle().Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Assistant),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Help:      lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Table renders rows under a header with the theme's border.
func (s Styles) Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Label.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// StatusLabel is the Korean label shown for a conversation status.
func StatusLabel(st projection.Status) string {
	switch st {
	case projection.StatusDisconnected:
		return "연결 끊김"
	case projection.StatusConnecting:
		return "연결 중"
	case projection.StatusConnected:
		return "연결됨"
	case projection.StatusUserTurn:
		return "듣는 중"
	case projection.StatusAssistantTurn:
		return "응답 중"
	case projection.StatusError:
		return "오류"
	default:
		return string(st)
	}
}

// Transcript turns successive state snapshots into terminal lines. Each
// finalized message is printed once, in order; a streaming message holds
// back everything after it until it completes.
type Transcript struct {
	styles  Styles
	printed int
	status  projection.Status
	errMsg  string
}

// NewTranscript returns a printer with the given styles.
func NewTranscript(s Styles) *Transcript {
	return &Transcript{styles: s}
}

// Update returns the lines that st adds since the previous call.
func (t *Transcript) Update(st projection.State) []string {
	var lines []string
	if st.Status != t.status {
		t.status = st.Status
		lines = append(lines, t.styles.Help.Render("["+StatusLabel(st.Status)+"]"))
	}
	if len(st.Messages) < t.printed {
		// The store was reset.
		t.printed = 0
	}
	for t.printed < len(st.Messages) {
		m := st.Messages[t.printed]
		if m.Streaming {
			break
		}
		t.printed++
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case projection.RoleUser:
			lines = append(lines, t.styles.User.Render("나")+"  "+m.Content)
		default:
			lines = append(lines, t.styles.Assistant.Render("AI")+"  "+m.Content)
		}
	}
	if st.ErrorMessage != "" && st.ErrorMessage != t.errMsg {
		lines = append(lines, t.styles.Error.Render("오류")+"  "+st.ErrorMessage)
	}
	t.errMsg = st.ErrorMessage
	return lines
}
