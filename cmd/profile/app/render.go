package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkLength = 5
	pixelsPerLabel = 150.0
	legendWidth    = 16

	defaultPlotWidth  = 1200
	defaultPlotHeight = 500
	minPlotSize       = 50

	defaultTopBorder    = 50
	defaultLeftBorder   = 90
	defaultBottomBorder = 50
	defaultRightBorder  = 90

	defaultTimeFormat     = "15:04"
	defaultDatetimeFormat = "2006-01-02 15:04"
)

var outlineColor = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Space for the info bar
	Left   int // Space for the altitude scale
	Bottom int // Space for the time scale
	Right  int // Space for the temperature legend
}

type RenderConfig struct {
	Width, Height int // plot area in pixels

	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize      float64
	ColorTheme    ColorTheme
	ColorMapSize  int
	NoAnnotations bool

	BorderConfig BorderConfig
}

// ProfileRenderer draws an elevation profile whose area is coloured by the
// temperature at each point of the hike
type ProfileRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

func NewProfileRenderer(config RenderConfig) (*ProfileRenderer, error) {
	if config.Width < minPlotSize || config.Height < minPlotSize {
		return nil, fmt.Errorf("plot area %dx%d is too small", config.Width, config.Height)
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &ProfileRenderer{config: config}, nil
}

// altitudeRange is the altitude scale of the plot, rounded out to whole steps
type altitudeRange struct {
	Min, Max, Step float64
}

func newAltitudeRange(p *ProfileData, height int) altitudeRange {
	step := calculateNiceAltitudeStep(p.AltitudeMax-p.AltitudeMin, height)
	r := altitudeRange{
		Min:  math.Floor(p.AltitudeMin/step) * step,
		Max:  math.Ceil(p.AltitudeMax/step) * step,
		Step: step,
	}
	if r.Max <= r.Min {
		r.Max = r.Min + step
	}
	return r
}

func (r *ProfileRenderer) Render(p *ProfileData) (*image.RGBA, error) {
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plot := image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)

	bounds := TemperatureBounds{Min: math.Floor(p.TemperatureMin), Max: math.Ceil(p.TemperatureMax)}
	if r.colorMap == nil {
		r.colorMap = NewColorMapper(r.config.ColorMapSize, r.config.ColorTheme, bounds)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	alt := newAltitudeRange(p, r.config.Height)
	r.renderProfile(img, plot, p, alt)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        b,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, plot, p, alt, r.colorMap); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}
	return img, nil
}

// renderProfile fills every column of the plot from the bottom up to the
// altitude at that time, then traces the outline
func (r *ProfileRenderer) renderProfile(img *image.RGBA, plot image.Rectangle, p *ProfileData, alt altitudeRange) {
	width, height := plot.Dx(), plot.Dy()
	duration := p.Duration()

	prevY := -1
	for x := range width {
		var t time.Time
		if width > 1 {
			t = p.TimestampStart.Add(time.Duration(float64(duration) * float64(x) / float64(width-1)))
		} else {
			t = p.TimestampStart
		}
		pt := p.At(t)

		ratio := (pt.Altitude - alt.Min) / (alt.Max - alt.Min)
		top := plot.Max.Y - 1 - int(math.Round(ratio*float64(height-1)))
		top = min(max(top, plot.Min.Y), plot.Max.Y-1)

		col := plot.Min.X + x
		draw.Draw(img, image.Rect(col, top, col+1, plot.Max.Y), image.NewUniform(r.colorMap.GetColor(pt.Temperature)), image.Point{}, draw.Src)

		// join to the previous column so steep climbs stay continuous
		from, to := top, top
		if prevY >= 0 {
			from, to = min(prevY, top), max(prevY, top)
		}
		for y := from; y <= to; y++ {
			img.Set(col, y, outlineColor)
		}
		prevY = top
	}
}

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, plot image.Rectangle, p *ProfileData, alt altitudeRange, cm *ColorMapper) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawAltitudeScale(img, plot, alt); err != nil {
		return fmt.Errorf("drawing altitude scale: %w", err)
	}
	if err := a.drawTimeScale(img, plot, p); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawLegend(img, plot, cm); err != nil {
		return fmt.Errorf("drawing legend: %w", err)
	}
	if err := a.drawInfoBar(img, p); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) fontHeight() (height, descent int) {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round(), metrics.Descent.Round()
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, plot image.Rectangle, alt altitudeRange) error {
	fontHeight, descent := a.fontHeight()

	for m := alt.Min; m <= alt.Max+alt.Step/2; m += alt.Step {
		ratio := (m - alt.Min) / (alt.Max - alt.Min)
		y := plot.Max.Y - 1 - int(math.Round(ratio*float64(plot.Dy()-1)))

		for x := plot.Min.X - tickMarkLength; x < plot.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.Comma(int64(math.Round(m))) + " m"
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(plot.Min.X-tickMarkLength-3-width, y+fontHeight/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, plot image.Rectangle, p *ProfileData) error {
	duration := p.Duration()
	if duration <= 0 {
		return nil
	}

	step := calculateNiceTimeStep(duration, plot.Dx())
	fontHeight, _ := a.fontHeight()
	textY := plot.Max.Y + tickMarkLength + fontHeight

	first := p.TimestampStart.In(a.config.Location).Truncate(step)
	if first.Before(p.TimestampStart) {
		first = first.Add(step)
	}

	for t := first; !t.After(p.TimestampEnd); t = t.Add(step) {
		ratio := float64(t.Sub(p.TimestampStart)) / float64(duration)
		x := plot.Min.X + int(ratio*float64(plot.Dx()-1))

		for y := plot.Max.Y; y < plot.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := t.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

// drawLegend draws the temperature gradient in the right border, warmest on
// top
func (a *annotator) drawLegend(img *image.RGBA, plot image.Rectangle, cm *ColorMapper) error {
	left := plot.Max.X + 12
	bounds := cm.Bounds()

	for y := plot.Min.Y; y < plot.Max.Y; y++ {
		ratio := float64(plot.Max.Y-1-y) / float64(plot.Dy()-1)
		c := cm.GetColor(bounds.Min + ratio*(bounds.Max-bounds.Min))
		for x := left; x < left+legendWidth; x++ {
			img.Set(x, y, c)
		}
	}

	fontHeight, _ := a.fontHeight()
	labels := []struct {
		text string
		y    int
	}{
		{fmt.Sprintf("%.0f°C", bounds.Max), plot.Min.Y + fontHeight},
		{fmt.Sprintf("%.0f°C", bounds.Min), plot.Max.Y},
	}
	for _, l := range labels {
		if _, err := a.context.DrawString(l.text, freetype.Pt(left+legendWidth+4, l.y)); err != nil {
			return fmt.Errorf("drawing legend label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, p *ProfileData) error {
	var lines []string

	if s := p.Session; s != nil {
		lines = append(lines, fmt.Sprintf("%s (%s ft) to %s (%s ft)",
			locationName(s.Start.Name), humanize.Comma(int64(s.Start.Elevation)),
			locationName(s.End.Name), humanize.Comma(int64(s.End.Elevation))))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s - %s",
		p.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		p.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString(fmt.Sprintf("; %s", p.Duration().Round(time.Minute)))
	sb.WriteString(fmt.Sprintf("; ascent %s m, descent %s m",
		humanize.Comma(int64(math.Round(p.Ascent))), humanize.Comma(int64(math.Round(p.Descent)))))
	sb.WriteString(fmt.Sprintf("; %s samples", humanize.Comma(int64(len(p.Points)))))
	lines = append(lines, sb.String())

	fontHeight, _ := a.fontHeight()
	pt := freetype.Pt(a.config.Borders.Left, fontHeight+4)
	for _, line := range lines {
		if _, err := a.context.DrawString(line, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		pt.Y += a.context.PointToFixed(a.config.FontSize * 1.5)
	}
	return nil
}

func locationName(name string) string {
	if name == "" {
		return "?"
	}
	return name
}

func calculateNiceAltitudeStep(span float64, height int) float64 {
	steps := []float64{1, 2, 5, 10, 20, 50, 100, 200, 250, 500, 1000, 2000, 5000}

	desired := max(float64(height)/pixelsPerLabel*2, 2)
	target := span / desired

	for _, step := range steps {
		if step >= target {
			return step
		}
	}
	return steps[len(steps)-1]
}

func calculateNiceTimeStep(duration time.Duration, width int) time.Duration {
	roughStep := duration.Seconds() / max(float64(width)/pixelsPerLabel, 1)

	niceIntervals := []float64{
		60,    // 1 minute
		300,   // 5 minutes
		600,   // 10 minutes
		900,   // 15 minutes
		1800,  // 30 minutes
		3600,  // 1 hour
		7200,  // 2 hours
		14400, // 4 hours
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}
	return time.Hour * 6
}
