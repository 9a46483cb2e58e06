package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/logging"
	"github.com/cortexchat/internal/trace"
)

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	traceStageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	traceFailedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))
)

func rolePrefix(role conversation.Role) string {
	if role == conversation.RoleUser {
		return userStyle.Render("you") + " "
	}
	return assistantStyle.Render("cortex") + " "
}

// renderMessage renders one conversation message for the terminal
func renderMessage(m conversation.Message) string {
	switch m.Kind {
	case conversation.KindTable:
		if m.Table == nil {
			return rolePrefix(m.Role)
		}
		return rolePrefix(m.Role) + "\n" + renderTable(*m.Table)
	case conversation.KindError:
		return rolePrefix(m.Role) + errorStyle.Render(m.Text)
	default:
		return rolePrefix(m.Role) + m.Text
	}
}

// renderTable draws a result set as a bordered table
func renderTable(result conversation.TabularResult) string {
	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(result.Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	out := t.Render()
	if len(result.Rows) == 0 {
		out += "\n" + dimStyle.Render("(no rows)")
	}
	return out
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// renderTrace renders the recorded requests with the credential masked
func renderTrace(entries []trace.Entry, secret string) string {
	if len(entries) == 0 {
		return dimStyle.Render("No requests recorded yet.")
	}

	var b strings.Builder
	for i, e := range entries {
		title := fmt.Sprintf("#%d %s", i+1, e.Stage)
		if e.Failed() {
			title = traceFailedStyle.Render(title) + dimStyle.Render(" ["+e.ErrorKind+"]")
		} else {
			title = traceStageStyle.Render(title)
		}
		b.WriteString(title + "\n")
		b.WriteString(dimStyle.Render(e.Timestamp.Format("15:04:05.000")) + " " + e.Method + " " + e.URL + "\n")

		payload := map[string]interface{}{
			"headers": maskHeaders(e.Headers, secret),
		}
		if e.Body != nil {
			payload["body"] = e.Body
		}
		if e.Failed() {
			payload["error"] = e.Error
			if e.Raw != "" {
				payload["raw"] = e.Raw
			}
		} else {
			payload["outcome"] = e.Outcome
		}

		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			out = []byte(fmt.Sprintf("%+v", payload))
		}
		b.Write(out)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func maskHeaders(headers map[string]string, secret string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if secret != "" {
			v = strings.ReplaceAll(v, secret, logging.MaskSecret(secret))
		}
		out[k] = v
	}
	return out
}
