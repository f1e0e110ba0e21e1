// Package spinner renders long-running job progress on a TTY: a spinning
// indicator, the job headline, the elapsed time and line count, and the
// most recent output line, updated in place without scrolling the
// terminal buffer.
package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/stopwatch"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	dotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	metaStyle = lipgloss.NewStyle().Faint(true)
)

// IsTTY reports whether w is an interactive terminal. Callers fall back
// to plain line output when it is not.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Spinner displays a headline with ticker-style progress updates. Only
// the latest line is shown; the lossless stream stays on the job
// subscription and the job log.
type Spinner struct {
	program *tea.Program
	title   string
	lineCh  chan string
	done    chan struct{}
	output  io.Writer
}

// New creates a Spinner with the given headline writing to output
// (typically os.Stderr). If output is nil, os.Stderr is used.
func New(title string, output io.Writer) *Spinner {
	if output == nil {
		output = os.Stderr
	}

	return &Spinner{
		title:  title,
		lineCh: make(chan string, 100),
		done:   make(chan struct{}),
		output: output,
	}
}

// Line pushes a progress line into the display. It never blocks; when
// updates outpace the render loop, intermediate lines are skipped.
func (s *Spinner) Line(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	select {
	case s.lineCh <- line:
	case <-s.done:
	default:
	}
}

// Start runs the spinner display and blocks until Stop is called.
// Call it in a goroutine when there is work to do while it runs.
func (s *Spinner) Start() error {
	s.program = tea.NewProgram(newModel(s.title, s.lineCh, s.done, outputWidth(s.output)),
		tea.WithOutput(s.output),
		tea.WithoutSignalHandler(), // parent handles signals
	)

	_, err := s.program.Run()
	return err
}

// Stop ends the display and clears the spinner line from the terminal.
func (s *Spinner) Stop() {
	close(s.done)
	if s.program != nil {
		s.program.Quit()
	}
}

// outputWidth measures the terminal the display writes to.
func outputWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

type model struct {
	spinner spinner.Model
	watch   stopwatch.Model
	title   string
	latest  string
	lines   int
	width   int
	lineCh  <-chan string
	done    <-chan struct{}
	quit    bool
}

// lineMsg carries the next progress line into the render loop.
type lineMsg string

func newModel(title string, lineCh <-chan string, done <-chan struct{}, width int) model {
	return model{
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(dotStyle)),
		watch:   stopwatch.NewWithInterval(time.Second),
		title:   title,
		width:   width,
		lineCh:  lineCh,
		done:    done,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.watch.Init(), nextLine(m.lineCh, m.done))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case lineMsg:
		m.latest = string(msg)
		m.lines++
		return m, nextLine(m.lineCh, m.done)

	case spinner.TickMsg:
		sp, cmd := m.spinner.Update(msg)
		m.spinner = sp
		return m, cmd

	case stopwatch.TickMsg, stopwatch.StartStopMsg:
		sw, cmd := m.watch.Update(msg)
		m.watch = sw
		return m, cmd

	case tea.QuitMsg:
		m.quit = true
	}

	return m, nil
}

func (m model) View() string {
	if m.quit {
		// Leave nothing behind on exit.
		return ""
	}

	meta := metaStyle.Render(fmt.Sprintf("(%s, %d lines)", m.watch.View(), m.lines))
	head := fmt.Sprintf("%s %s %s", m.spinner.View(), m.title, meta)

	room := m.width - lipgloss.Width(head) - 2
	if m.latest == "" || room < 10 {
		return head
	}
	return head + ": " + clip(m.latest, room)
}

// nextLine waits for a progress line or the end of the stream.
func nextLine(lineCh <-chan string, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case line, ok := <-lineCh:
			if !ok {
				return tea.Quit()
			}
			return lineMsg(line)
		case <-done:
			return tea.Quit()
		}
	}
}

// clip shortens s to at most max display runes, marking the cut.
func clip(s string, max int) string {
	if max < 2 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
