// Package tui provides a terminal user interface for bbs1ctl
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/tempo"
)

// Peterson-inspired color scheme
var (
	strobeRed  = lipgloss.Color("#FF3B30")
	amber      = lipgloss.Color("#FFB000")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(strobeRed).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(strobeRed).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(amber).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(strobeRed).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(strobeRed).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConfirm
	StateWorking
	StateResult
)

// Action is a menu action
type Action int

const (
	ActionInfo Action = iota
	ActionFetch
	ActionExportMIDI
	ActionSaveDump
	ActionOpenDump
	ActionDelete
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
}

var menuItems = []MenuItem{
	{Title: "Device info", Description: "Check the connection and read mode and versions", Action: ActionInfo},
	{Title: "Show tempo maps", Description: "Download and list every tempo map", Action: ActionFetch},
	{Title: "Export MIDI", Description: "Download tempo maps and write a .mid file", Action: ActionExportMIDI},
	{Title: "Save dump", Description: "Download tempo maps and write the raw .syx dump", Action: ActionSaveDump},
	{Title: "Open dump", Description: "Decode a .syx dump from disk", Action: ActionOpenDump},
	{Title: "Delete tempo maps", Description: "Erase every tempo map on the device", Action: ActionDelete},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Options configures the TUI
type Options struct {
	Open        func() (device.Transport, error)
	SessionOpts []device.Option
	DecodeOpts  []tempo.DecodeOption
	OutputDir   string
}

// deviceLink opens the session on first use and is shared by model copies
type deviceLink struct {
	mu      sync.Mutex
	opts    Options
	session *device.Session
}

func (l *deviceLink) get() (*device.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		if l.opts.Open == nil {
			return nil, device.ErrNotFound
		}
		tr, err := l.opts.Open()
		if err != nil {
			return nil, err
		}
		l.session = device.NewSession(tr, l.opts.SessionOpts...)
	}
	return l.session, nil
}

func (l *deviceLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}

// Model represents the TUI model
type Model struct {
	state      State
	menuIndex  int
	filePicker filepicker.Model
	spinner    spinner.Model
	action     MenuItem
	link       *deviceLink
	outputDir  string
	result     string
	err        error
	width      int
	height     int
}

// actionDoneMsg signals that a device or file action finished
type actionDoneMsg struct {
	result string
	err    error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".syx", ".bbs"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(strobeRed)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}

	return Model{
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
		link:       &deviceLink{opts: opts},
		outputDir:  dir,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// the file picker needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.state = StateWorking
			return m, tea.Batch(m.spinner.Tick, m.openDump(path))
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateConfirm:
			return m.updateConfirm(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case actionDoneMsg:
		m.state = StateResult
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		m.action = menuItems[m.menuIndex]
		switch m.action.Action {
		case ActionExit:
			return m, m.quit()
		case ActionOpenDump:
			m.state = StateFilePicker
			return m, m.filePicker.Init()
		case ActionDelete:
			m.state = StateConfirm
			return m, nil
		}
		m.state = StateWorking
		return m, tea.Batch(m.spinner.Tick, m.perform(m.action.Action))
	case "q", "ctrl+c":
		return m, m.quit()
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.state = StateWorking
		return m, tea.Batch(m.spinner.Tick, m.perform(ActionDelete))
	case "ctrl+c":
		return m, m.quit()
	default:
		m.state = StateMenu
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.result = ""
		return m, nil
	case "q", "ctrl+c":
		return m, m.quit()
	}
	return m, nil
}

func (m Model) quit() tea.Cmd {
	_ = m.link.close()
	return tea.Quit
}

// perform runs action against the device. A session whose transport failed
// is dropped so the next action reopens the ports.
func (m Model) perform(action Action) tea.Cmd {
	link := m.link
	dir := m.outputDir
	return func() tea.Msg {
		sess, err := link.get()
		if err != nil {
			return actionDoneMsg{err: err}
		}
		done := runAction(sess, action, dir)
		if errors.Is(done.err, device.ErrDisconnected) || errors.Is(done.err, device.ErrClosed) {
			_ = link.close()
		}
		return done
	}
}

func runAction(sess *device.Session, action Action, dir string) actionDoneMsg {
	ctx := context.Background()

	switch action {
	case ActionInfo:
		info, err := sess.Info(ctx)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{result: FormatInfo(info)}

	case ActionFetch, ActionExportMIDI, ActionSaveDump:
		f, frames, err := sess.FetchTempoMaps(ctx)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		switch action {
		case ActionExportMIDI:
			out := filepath.Join(dir, "tempomaps.mid")
			if err := tempo.WriteMIDIFile(f, out); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{result: fmt.Sprintf("Wrote %d maps to %s", f.MapsCount(), out)}
		case ActionSaveDump:
			out := filepath.Join(dir, "tempomaps.syx")
			if err := device.WriteDumpFile(out, frames); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{result: fmt.Sprintf("Wrote %d pages to %s", len(frames), out)}
		}
		return actionDoneMsg{result: FormatFile(f)}

	case ActionDelete:
		if err := sess.DeleteTempoMaps(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{result: "All tempo maps deleted"}
	}
	return actionDoneMsg{err: fmt.Errorf("unsupported action %d", action)}
}

func (m Model) openDump(path string) tea.Cmd {
	opts := m.link.opts.DecodeOpts
	return func() tea.Msg {
		f, err := device.ReadTempoFile(path, opts...)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{result: FormatFile(f)}
	}
}

// FormatInfo renders device info as text
func FormatInfo(info *device.Info) string {
	if !info.Connected {
		return "Device did not acknowledge the connection"
	}
	return fmt.Sprintf("Connected\nMode:     %s\nHardware: %s\nFirmware: %s",
		info.Mode, info.Hardware, info.Firmware)
}

// FormatFile renders a tempo map file as text
func FormatFile(f *tempo.File) string {
	var s strings.Builder
	fmt.Fprintf(&s, "Format v%d, %d bytes, %d maps\n", f.Version, f.Size, f.MapsCount())
	for i, m := range f.Maps {
		name := m.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&s, "\n%d. %s", i+1, name)
		if m.Looping {
			s.WriteString(" [loop]")
		}
		if m.CountIn > 0 {
			fmt.Fprintf(&s, " [count-in %d]", m.CountIn)
		}
		if m.Bars == nil && m.Length > 0 {
			s.WriteString("\n   bars not decoded")
			continue
		}
		for _, b := range m.Bars {
			fmt.Fprintf(&s, "\n   %s", b)
		}
	}
	return s.String()
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateConfirm:
		s.WriteString(m.viewConfirm())
	case StateWorking:
		s.WriteString(m.viewWorking())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" BBS-1 "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(amber).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT DUMP FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewConfirm() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" DELETE "))
	s.WriteString("\n\n")
	s.WriteString(errorStyle.Render("Erase every tempo map on the device?"))
	s.WriteString("\n")
	s.WriteString(statusStyle.Render("y: delete • any other key: cancel"))

	return boxStyle.Render(s.String())
}

func (m Model) viewWorking() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" WORKING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s %s...\n", m.spinner.View(), m.action.Title))
	s.WriteString(statusStyle.Render("  talking to the BBS-1"))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s failed: %s", m.action.Title, m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" DONE "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ " + m.action.Title))
		s.WriteString("\n\n")
		s.WriteString(m.result)
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____  ____  ____        _
  | __ )| __ )/ ___|      / |
  |  _ \|  _ \\___ \ _____| |
  | |_) | |_) |___) |_____| |
  |____/|____/|____/      |_|
`
	return lipgloss.NewStyle().Foreground(strobeRed).Render(logo)
}

// Run starts the TUI application
func Run(opts Options) error {
	m := New(opts)
	defer func() { _ = m.link.close() }()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
