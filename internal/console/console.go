// Package console renders live progress and a final summary to the
// terminal during a run, falling back to one-line-per-tick output when
// stdout is not a TTY (piped to a file, CI logs).
package console

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/kaioken/internal/metrics"
	"github.com/wesleyorama2/kaioken/internal/plan"
	"github.com/wesleyorama2/kaioken/internal/threshold"
)

const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// Stats is the subset of a Snapshot the live display needs, alongside
// progress and stage information the metrics package doesn't track.
type Stats struct {
	Progress      float64
	Elapsed       time.Duration
	Remaining     time.Duration
	ActiveVUs     int
	TargetVUs     int
	RPS           float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	P95           time.Duration
	Mean          time.Duration
	Phase         string
}

// FromSnapshot derives Stats from a metrics.Snapshot plus the
// information the executor alone knows.
func FromSnapshot(snap metrics.Snapshot, progress float64, totalDuration time.Duration, targetVUs int) Stats {
	remaining := time.Duration(0)
	switch {
	case progress > 0 && progress < 1:
		remaining = time.Duration(float64(snap.Elapsed) * (1 - progress) / progress)
	case totalDuration > 0:
		remaining = totalDuration - snap.Elapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return Stats{
		Progress:      progress,
		Elapsed:       snap.Elapsed,
		Remaining:     remaining,
		ActiveVUs:     snap.ActiveVUs,
		TargetVUs:     targetVUs,
		RPS:           snap.RPS,
		TotalRequests: snap.TotalRequests,
		Errors:        snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		P95:           time.Duration(snap.Latency.P95) * time.Microsecond,
		Mean:          time.Duration(snap.Latency.Mean) * time.Microsecond,
		Phase:         string(snap.Phase),
	}
}

// Console writes live progress and a final summary to a Writer,
// auto-detecting TTY-ness unless overridden.
type Console struct {
	name   string
	writer io.Writer
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	linesOutput int

	colorBold, colorDim, colorCyan, colorMagenta *color.Color
	colorGreen, colorYellow, colorRed, colorBlue *color.Color
}

// Config configures a Console.
type Config struct {
	Name     string
	Writer   io.Writer
	Quiet    bool
	NoColor  bool
	ForceTTY bool
}

// New builds a Console, applying color/TTY detection per Config.
func New(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	c := &Console{
		name:   cfg.Name,
		writer: cfg.Writer,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
	}

	noColor := cfg.NoColor || os.Getenv("NO_COLOR") != "" || !isTTY
	c.colorBold = newColor(noColor, color.Bold)
	c.colorDim = newColor(noColor, color.Faint)
	c.colorCyan = newColor(noColor, color.FgCyan)
	c.colorMagenta = newColor(noColor, color.FgMagenta)
	c.colorGreen = newColor(noColor, color.FgGreen)
	c.colorYellow = newColor(noColor, color.FgYellow)
	c.colorRed = newColor(noColor, color.FgRed)
	c.colorBlue = newColor(noColor, color.FgBlue)
	return c
}

func newColor(disabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if disabled {
		c.DisableColor()
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	if runtime.GOOS == "windows" {
		return isatty.IsCygwinTerminal(f.Fd())
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY reports whether the console is writing to an interactive terminal.
func (c *Console) IsTTY() bool { return c.isTTY }

// PrintHeader prints the run's opening banner.
func (c *Console) PrintHeader(loadKind plan.LoadKind) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.colorCyan.Sprint(line))
	c.writeln(c.colorBold.Sprintf("%s - Running [%s]", c.name, loadKind))
	c.writeln(c.colorCyan.Sprint(line))
	c.writeln("")
}

// Update renders the live progress display, redrawing in place on a TTY
// or appending a one-line status otherwise.
func (c *Console) Update(s Stats) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(fmt.Sprintf("[%s] progress=%.0f%% vus=%d/%d reqs=%d rps=%.1f errors=%d(%.1f%%) p95=%s",
			formatDuration(s.Elapsed), s.Progress*100, s.ActiveVUs, s.TargetVUs,
			s.TotalRequests, s.RPS, s.Errors, s.ErrorRate*100, formatDurationShort(s.P95)))
		return
	}

	if c.linesOutput > 0 {
		c.write(fmt.Sprintf(cursorUp, c.linesOutput))
		for i := 0; i < c.linesOutput; i++ {
			c.write(clearLine)
			if i < c.linesOutput-1 {
				c.write("\n")
			}
		}
		c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	}

	lines := c.renderLiveStats(s)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) renderLiveStats(s Stats) []string {
	var lines []string

	bar := renderProgressBar(s.Progress, 40)
	pct := fmt.Sprintf("%.0f%%", s.Progress*100)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(s.Elapsed), formatDuration(s.Elapsed+s.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colorGreen.Sprint(bar), c.colorBold.Sprint(pct), c.colorDim.Sprint(timeInfo)))
	lines = append(lines, fmt.Sprintf("Phase:    %s", c.colorMagenta.Sprint(s.Phase)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, c.colorDim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", c.colorCyan.Sprintf("%d", s.ActiveVUs), s.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", c.colorCyan.Sprint(formatNumber(s.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr, boxWidth))

	rpsStr := fmt.Sprintf("RPS:     %s", c.colorGreen.Sprintf("%.1f", s.RPS))
	errColor := c.colorGreen
	if s.ErrorRate > 0.01 {
		errColor = c.colorYellow
	}
	if s.ErrorRate > 0.05 {
		errColor = c.colorRed
	}
	errStr := fmt.Sprintf("Errors:      %s (%s)", errColor.Sprintf("%d", s.Errors), errColor.Sprintf("%.1f%%", s.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr, boxWidth))

	p95Str := fmt.Sprintf("P95:     %s", c.colorBlue.Sprint(formatDurationShort(s.P95)))
	avgStr := fmt.Sprintf("Avg:         %s", c.colorBlue.Sprint(formatDurationShort(s.Mean)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr, boxWidth))

	lines = append(lines, c.colorDim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

func (c *Console) formatBoxRow(left, right string, boxWidth int) string {
	leftVisible := stripANSI(left)
	rightVisible := stripANSI(right)

	colWidth := (boxWidth - 4) / 2
	leftPad := colWidth - len(leftVisible)
	if leftPad < 0 {
		leftPad = 0
	}
	rightPad := colWidth - len(rightVisible)
	if rightPad < 0 {
		rightPad = 0
	}

	return fmt.Sprintf("%s %s%s%s %s%s %s",
		c.colorDim.Sprint(boxVertical),
		left, strings.Repeat(" ", leftPad),
		c.colorDim.Sprint(boxVertical),
		right, strings.Repeat(" ", rightPad),
		c.colorDim.Sprint(boxVertical))
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// Summary is everything PrintSummary needs about the finished run.
type Summary struct {
	Name       string
	Duration   time.Duration
	Passed     bool
	Metrics    metrics.Snapshot
	Thresholds []threshold.Result
}

// PrintSummary prints the final run report.
func (c *Console) PrintSummary(s Summary) {
	if c.quiet {
		if s.Passed {
			c.writeln(c.colorGreen.Sprint("PASSED"))
		} else {
			c.writeln(c.colorRed.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY && c.linesOutput > 0 {
		c.write(fmt.Sprintf(cursorUp, c.linesOutput))
		for i := 0; i < c.linesOutput; i++ {
			c.write(clearLine + "\n")
		}
		c.write(fmt.Sprintf(cursorUp, c.linesOutput))
		c.linesOutput = 0
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := "Completed"
	statusColor := c.colorGreen
	if !s.Passed {
		status = "Failed"
		statusColor = c.colorRed
	}

	c.writeln("")
	c.writeln(c.colorCyan.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colorBold.Sprint(s.Name), statusColor.Sprint(status)))
	c.writeln(c.colorCyan.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colorCyan.Sprint(formatDuration(s.Duration))))
	c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colorCyan.Sprint(formatNumber(s.Metrics.TotalRequests))))

	successRate := 1.0 - s.Metrics.ErrorRate
	successColor := c.colorGreen
	if successRate < 0.99 {
		successColor = c.colorYellow
	}
	if successRate < 0.95 {
		successColor = c.colorRed
	}
	c.writeln(fmt.Sprintf("Success Rate:  %s", successColor.Sprintf("%.1f%%", successRate*100)))
	if s.Metrics.DroppedIterations > 0 {
		c.writeln(fmt.Sprintf("Dropped:       %s", c.colorYellow.Sprintf("%d iterations", s.Metrics.DroppedIterations)))
	}
	c.writeln("")

	c.writeln(c.colorBold.Sprint("Latency Distribution:"))
	lat := s.Metrics.Latency
	c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(us(lat.Min))))
	c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(us(lat.P50))))
	c.writeln(fmt.Sprintf("  P75:       %s", formatDurationShort(us(lat.P75))))
	c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(us(lat.P90))))
	c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(us(lat.P95))))
	c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(us(lat.P99))))
	c.writeln(fmt.Sprintf("  P99.9:     %s", formatDurationShort(us(lat.P999))))
	c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(us(lat.Max))))
	c.writeln("")

	if len(s.Metrics.Checks) > 0 {
		c.writeln(c.colorBold.Sprint("Checks:"))
		for name, stat := range s.Metrics.Checks {
			icon := c.colorGreen.Sprint("✓")
			if stat.PassRate() < 1.0 {
				icon = c.colorRed.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s (%d/%d)", icon, name, stat.Passed, stat.Total))
		}
		c.writeln("")
	}

	if len(s.Thresholds) > 0 {
		c.writeln(c.colorBold.Sprint("Thresholds:"))
		for _, t := range s.Thresholds {
			icon := c.colorGreen.Sprint("✓")
			if !t.Passed {
				icon = c.colorRed.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s (actual: %s)", icon, t.Expression, t.Actual))
		}
		c.writeln("")
	}
}

func us(microseconds int64) time.Duration { return time.Duration(microseconds) * time.Microsecond }

func (c *Console) write(s string)   { fmt.Fprint(c.writer, s) }
func (c *Console) writeln(s string) { fmt.Fprintln(c.writer, s) }

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
}

func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// stripANSI removes escape sequences so padding math counts visible
// characters rather than color codes.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\033':
			inEscape = true
		case inEscape:
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	var b strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		b.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(str[i : i+3])
	}
	return b.String()
}
