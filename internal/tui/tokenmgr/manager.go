// Package tokenmgr is the interactive scope picker behind "hwcd token new".
package tokenmgr

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hwcd/internal/auth"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type item struct {
	scope    string
	desc     string
	selected bool
}

func (i item) Title() string {
	check := "[ ]"
	if i.selected {
		check = "[x]"
	}
	return fmt.Sprintf("%s %s", check, i.scope)
}
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.scope }

// Model is the bubbletea model for the picker.
type Model struct {
	list      list.Model
	cancelled bool
	done      bool
	scopes    []string
}

// New builds a picker with the scopes in preselected already ticked.
func New(preselected ...string) *Model {
	picked := make(map[string]bool, len(preselected))
	for _, s := range preselected {
		picked[s] = true
	}

	items := make([]list.Item, 0, len(auth.Catalog))
	for _, s := range auth.Catalog {
		items = append(items, item{scope: s.Name, desc: s.Description, selected: picked[s.Name]})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Scopes (Space to toggle, Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return &Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit

		case " ":
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				m.list.SetItem(m.list.Index(), i)
			}
			return m, nil

		case "enter":
			m.done = true
			m.scopes = m.selected()
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selected() []string {
	var out []string
	for _, li := range m.list.Items() {
		if it, ok := li.(item); ok && it.selected {
			out = append(out, it.scope)
		}
	}
	return out
}

func (m Model) View() string {
	if m.cancelled {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected scopes: %s", strings.Join(m.scopes, ", ")))
	}
	return "\n" + m.list.View()
}

// Result returns the confirmed scopes. ok is false when the picker was
// cancelled or nothing was selected.
func (m Model) Result() ([]string, bool) {
	if m.cancelled || !m.done || len(m.scopes) == 0 {
		return nil, false
	}
	return m.scopes, true
}
