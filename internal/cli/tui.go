package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dropstage/dropstage/pkg/channel"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	listTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
)

// =============================================================================
// ChannelListModel - Interactive channel selection
// =============================================================================

// channelEntry is one discovered channel file.
type channelEntry struct {
	Path    string
	Channel *channel.Channel
}

// ChannelListModel is the bubbletea model for interactive channel selection.
type ChannelListModel struct {
	Entries  []channelEntry
	Cursor   int
	Selected *channelEntry
	Height   int
	Offset   int
}

// NewChannelListModel creates a new channel list model.
func NewChannelListModel(entries []channelEntry) ChannelListModel {
	return ChannelListModel{
		Entries: entries,
		Height:  15,
	}
}

func (m ChannelListModel) Init() tea.Cmd {
	return nil
}

func (m ChannelListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			entry := m.Entries[m.Cursor]
			m.Selected = &entry
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m ChannelListModel) View() string {
	var b strings.Builder

	b.WriteString(listTitleStyle.Render("Select Channel"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Entries) {
		end = len(m.Entries)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		e := m.Entries[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		name, nodes, frames := "—", "—", "—"
		if e.Channel != nil {
			if e.Channel.Name != "" {
				name = e.Channel.Name
			}
			nodes = fmt.Sprintf("%d", len(e.Channel.Nodes))
			if e.Channel.Frames > 0 {
				frames = fmt.Sprintf("%d", e.Channel.Frames)
			} else {
				frames = fmt.Sprintf("%d", channel.DefaultFrames)
			}
		}

		rows = append(rows, []string{cursor, e.Path, name, nodes, frames})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "File", "Channel", "Nodes", "Frames").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			if col >= 3 {
				return listDimStyle
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Entries))))

	return b.String()
}

// =============================================================================
// Channel discovery
// =============================================================================

// discoverChannels finds parseable channel files under dir. TOML files that
// fail to parse as channels (asset pools, unrelated configs) are skipped.
func discoverChannels(dir string) ([]channelEntry, error) {
	var entries []channelEntry
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".toml" {
			return nil
		}
		ch, err := channel.Load(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		entries = append(entries, channelEntry{Path: rel, Channel: ch})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// selectChannel runs the interactive picker over channel files found in the
// working directory. Returns "" when the user quits without selecting.
func selectChannel() (string, error) {
	entries, err := discoverChannels(".")
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		printError("No channel files found in the current directory")
		return "", fmt.Errorf("no channel files found")
	}

	printSuccess("Found %d channel files", len(entries))

	m := NewChannelListModel(entries)
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	fm, ok := finalModel.(ChannelListModel)
	if !ok || fm.Selected == nil {
		printDetail("No selection made")
		return "", nil
	}
	return fm.Selected.Path, nil
}
