package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"candleView/internal/app"
	"candleView/internal/chart"
	"candleView/internal/domain"
	"candleView/internal/ports"
)

// Layout constants. The chart canvas gets everything except one header
// row, one time-axis row, one footer row and the price gutter on the
// right.
const (
	priceGutterWidth = 11
	headerRows       = 1
	axisRows         = 1
	footerRows       = 1
	minTermWidth     = 40
	minTermHeight    = 10
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleGrid   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleBull   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleBear   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleHelp   = lipgloss.NewStyle().Faint(true)
	stylePlain  = lipgloss.NewStyle()

	statusStyles = map[domain.StatusLevel]lipgloss.Style{
		domain.StatusInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.StatusWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// sceneMsg wakes the update loop after the renderer swapped in a new scene.
type sceneMsg struct{}

// startFailedMsg carries a fatal service startup error into the update loop.
type startFailedMsg struct{ err error }

// sceneSink implements chart.Sink. The renderer swaps complete scenes in;
// the program is poked so View picks the new one up.
type sceneSink struct {
	mu    sync.Mutex
	scene *chart.Scene
	prog  *tea.Program
}

func newSceneSink() *sceneSink {
	return &sceneSink{}
}

func (s *sceneSink) SetScene(scene *chart.Scene) {
	s.mu.Lock()
	s.scene = scene
	prog := s.prog
	s.mu.Unlock()
	if prog != nil {
		go prog.Send(sceneMsg{})
	}
}

func (s *sceneSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.prog = p
	s.mu.Unlock()
}

func (s *sceneSink) current() *chart.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// chartModel is the bubbletea model hosting the chart.
type chartModel struct {
	svc    *app.ChartService
	sink   *sceneSink
	logger ports.Logger

	width    int
	height   int
	startErr error
}

func newChartModel(svc *app.ChartService, sink *sceneSink, logger ports.Logger) chartModel {
	return chartModel{svc: svc, sink: sink, logger: logger}
}

// Init starts the chart service once the program's event loop is live, so
// the first paint has somewhere to land.
func (m chartModel) Init() tea.Cmd {
	return func() tea.Msg {
		if err := m.svc.Start(context.Background()); err != nil {
			return startFailedMsg{err: err}
		}
		return nil
	}
}

func (m chartModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "left":
			m.svc.Pan(-m.panStep())
		case "right":
			m.svc.Pan(m.panStep())
		case "+", "=":
			m.svc.Zoom(true)
		case "-", "_":
			m.svc.Zoom(false)
		case "l":
			m.svc.ToggleScaleMode()
		case "t":
			m.svc.ToggleTimeFormat()
		case "g":
			m.svc.CycleGranularity()
		case "r":
			m.svc.RetryFetch()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		chartW := m.width - priceGutterWidth
		chartH := m.height - headerRows - axisRows - footerRows
		m.svc.Resize(chartW, chartH)
		return m, nil

	case sceneMsg:
		// State already lives in the sink; a fresh View is all we need.
		return m, nil

	case startFailedMsg:
		m.startErr = msg.err
		m.logger.Error(context.Background(), msg.err, "Chart service failed to start")
		return m, tea.Quit
	}
	return m, nil
}

func (m chartModel) View() string {
	if m.startErr != nil {
		return fmt.Sprintf("startup failed: %v\n", m.startErr)
	}
	if m.width < minTermWidth || m.height < minTermHeight {
		return styleHelp.Render("terminal too small, please resize") + "\n"
	}

	scene := m.sink.current()
	st := m.svc.Status()

	var b strings.Builder
	b.WriteString(m.headerLine(st))
	b.WriteString("\n")

	if scene == nil {
		for i := 0; i < m.height-headerRows-footerRows-1; i++ {
			b.WriteString("\n")
		}
	} else {
		b.WriteString(rasterize(scene))
	}

	b.WriteString(m.footerLine(st))
	return b.String()
}

func (m chartModel) headerLine(st app.Status) string {
	price := "…"
	if st.HasPrice {
		price = fmt.Sprintf("%.2f", st.LastPrice)
	}
	head := fmt.Sprintf(" %s  %s  %s  last %s", st.Product, st.Granularity, st.ScaleMode, price)
	return styleHeader.Render(head)
}

func (m chartModel) footerLine(st app.Status) string {
	status := statusStyles[st.Level()].Render(st.Message())
	help := styleHelp.Render("  ←/→ pan  +/- zoom  l log  t 12h  g interval  r retry  q quit")
	return " " + status + help
}

// panStep pans by a tenth of the visible window so the feel is constant
// across zoom levels.
func (m chartModel) panStep() int {
	st := m.svc.Status()
	step := (st.VisibleEnd - st.VisibleStart) / 10
	if step < 1 {
		step = 1
	}
	return step
}

// --- Scene rasterization ---

type cellClass uint8

const (
	cellBlank cellClass = iota
	cellGrid
	cellBull
	cellBear
	cellMarker
)

type cell struct {
	r   rune
	cls cellClass
}

func classStyle(cls cellClass) lipgloss.Style {
	switch cls {
	case cellGrid:
		return styleGrid
	case cellBull:
		return styleBull
	case cellBear:
		return styleBear
	case cellMarker:
		return styleMarker
	default:
		return stylePlain
	}
}

// rasterize converts the renderer's scene into styled terminal rows. One
// scene pixel maps to one cell; the price gutter and the time-axis row
// are composed around the canvas.
func rasterize(scene *chart.Scene) string {
	w, h := int(scene.Width), int(scene.Height)
	if w <= 0 || h <= 0 {
		return "\n"
	}

	canvas := make([][]cell, h)
	for y := range canvas {
		canvas[y] = make([]cell, w)
		for x := range canvas[y] {
			canvas[y][x] = cell{r: ' ', cls: cellBlank}
		}
	}

	drawGrid(canvas, scene, w, h)
	drawCandles(canvas, scene, w, h)
	markerRow := drawMarker(canvas, scene, w, h)
	drawNotice(canvas, scene, w, h)

	gutter := buildGutter(scene, h, markerRow)
	axis := buildAxisRow(scene, w)

	var b strings.Builder
	for y := 0; y < h; y++ {
		b.WriteString(renderRow(canvas[y]))
		b.WriteString(gutter[y])
		b.WriteString("\n")
	}
	b.WriteString(axis)
	b.WriteString("\n")
	return b.String()
}

func drawGrid(canvas [][]cell, scene *chart.Scene, w, h int) {
	for _, gl := range scene.Grid {
		switch gl.Axis {
		case chart.GridHorizontal:
			y := int(gl.Y1)
			if y < 0 || y >= h {
				continue
			}
			for x := 0; x < w; x++ {
				canvas[y][x] = cell{r: '─', cls: cellGrid}
			}
		case chart.GridVertical:
			x := int(gl.X1)
			if x < 0 || x >= w {
				continue
			}
			for y := 0; y < h; y++ {
				r := '│'
				if canvas[y][x].r == '─' {
					r = '┼'
				}
				canvas[y][x] = cell{r: r, cls: cellGrid}
			}
		}
	}
}

func drawCandles(canvas [][]cell, scene *chart.Scene, w, h int) {
	for _, c := range scene.Candles {
		x := int(c.X)
		if x < 0 || x >= w {
			continue
		}
		cls := cellBear
		if c.Bullish {
			cls = cellBull
		}

		// Wick spans the full high..low extent.
		yTop, yBot := int(c.YHigh), int(c.YLow)
		for y := clampInt(yTop, 0, h-1); y <= clampInt(yBot, 0, h-1); y++ {
			canvas[y][x] = cell{r: '│', cls: cls}
		}

		// Body overwrites the wick between open and close.
		bodyTop := int(minFloat(c.YOpen, c.YClose))
		bodyBot := int(maxFloat(c.YOpen, c.YClose))
		half := int(c.BodyWidth) / 2
		for y := clampInt(bodyTop, 0, h-1); y <= clampInt(bodyBot, 0, h-1); y++ {
			for bx := x - half; bx <= x+half; bx++ {
				if bx < 0 || bx >= w {
					continue
				}
				canvas[y][bx] = cell{r: '█', cls: cls}
			}
		}
	}
}

func drawMarker(canvas [][]cell, scene *chart.Scene, w, h int) int {
	if scene.Marker == nil {
		return -1
	}
	y := int(scene.Marker.Y)
	if y < 0 || y >= h {
		return -1
	}
	for x := 0; x < w; x++ {
		if x%2 == 0 {
			canvas[y][x] = cell{r: '╌', cls: cellMarker}
		}
	}
	return y
}

func drawNotice(canvas [][]cell, scene *chart.Scene, w, h int) {
	if scene.Notice == "" {
		return
	}
	text := scene.Notice
	y := h / 2
	x := (w - len(text)) / 2
	if x < 0 {
		x = 0
	}
	for i, r := range text {
		if x+i >= w {
			break
		}
		canvas[y][x+i] = cell{r: r, cls: cellGrid}
	}
}

// buildGutter returns one styled gutter string per canvas row, carrying the
// price labels and, on its row, the live marker tag.
func buildGutter(scene *chart.Scene, h, markerRow int) []string {
	texts := make([]string, h)
	for _, l := range scene.Labels {
		if l.Side != chart.SideRight {
			continue
		}
		y := int(l.Y)
		if y < 0 || y >= h || y == markerRow {
			continue
		}
		texts[y] = l.Text
	}

	rows := make([]string, h)
	for y := 0; y < h; y++ {
		switch {
		case y == markerRow && scene.Marker != nil:
			rows[y] = styleMarker.Render(fmt.Sprintf("◂%-*s", priceGutterWidth-1, scene.Marker.Text))
		case texts[y] != "":
			rows[y] = styleLabel.Render(fmt.Sprintf(" %-*s", priceGutterWidth-1, texts[y]))
		default:
			rows[y] = strings.Repeat(" ", priceGutterWidth)
		}
	}
	return rows
}

func buildAxisRow(scene *chart.Scene, w int) string {
	row := make([]rune, w)
	for i := range row {
		row[i] = ' '
	}
	for _, l := range scene.Labels {
		if l.Side != chart.SideBottom {
			continue
		}
		x := int(l.X) - len(l.Text)/2
		if x < 0 {
			x = 0
		}
		for i, r := range l.Text {
			if x+i >= w {
				break
			}
			row[x+i] = r
		}
	}
	return styleLabel.Render(string(row))
}

func renderRow(cells []cell) string {
	var b strings.Builder
	for i := 0; i < len(cells); {
		j := i
		for j < len(cells) && cells[j].cls == cells[i].cls {
			j++
		}
		seg := make([]rune, 0, j-i)
		for k := i; k < j; k++ {
			seg = append(seg, cells[k].r)
		}
		b.WriteString(classStyle(cells[i].cls).Render(string(seg)))
		i = j
	}
	return b.String()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
