package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"
	EnhancedTheme  ColorTheme = "enhanced"

	DefaultColorMapSize = 256
)

// ColorTheme is a scheme for temperature visualization
type ColorTheme string

func validTheme(theme ColorTheme) bool {
	switch theme {
	case ClassicTheme, GrayscaleTheme, ThermalTheme, MarineTheme, EnhancedTheme:
		return true
	}
	return false
}

// TemperatureBounds is the range of temperatures mapped onto the theme
type TemperatureBounds struct {
	Min, Max float64 // °C
}

// ColorMapper maps temperatures onto a pre-computed gradient
type ColorMapper struct {
	colorMap     []color.Color
	bounds       TemperatureBounds
	theme        func(float64) color.Color
	size         int
	tempPerIndex float64
}

func NewColorMapper(size int, theme ColorTheme, bounds TemperatureBounds) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	cm := &ColorMapper{
		colorMap: make([]color.Color, size),
		theme:    GetColorTheme(theme),
		size:     size,
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds rebuilds the gradient. A flat range is widened by a degree
// each way.
func (cm *ColorMapper) UpdateBounds(bounds TemperatureBounds) {
	if bounds.Max <= bounds.Min {
		bounds = TemperatureBounds{Min: bounds.Min - 1, Max: bounds.Min + 1}
	}

	cm.bounds = bounds
	cm.tempPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := range cm.size {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
}

func (cm *ColorMapper) Bounds() TemperatureBounds {
	return cm.bounds
}

func (cm *ColorMapper) GetColor(temperature float64) color.Color {
	t := math.Max(cm.bounds.Min, math.Min(temperature, cm.bounds.Max))

	index := int((t - cm.bounds.Min) / cm.tempPerIndex)
	if index < 0 {
		index = 0
	} else if index >= cm.size {
		index = cm.size - 1
	}
	return cm.colorMap[index]
}

func hsv(h, s, v float64) color.Color {
	return colorful.Hsv(math.Mod(h+360, 360), s, v).Clamped()
}

// GetColorTheme returns the gradient function of theme. The function takes a
// normalized temperature in [0, 1].
func GetColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme: // Blue -> Red
		return func(t float64) color.Color {
			return hsv(240-(t*240), 0.9+(t*0.1), 0.85)
		}

	case GrayscaleTheme: // Dark -> Light
		return func(t float64) color.Color {
			v := 0.2 + math.Pow(t, 0.7)*0.7
			return colorful.Color{R: v, G: v, B: v}
		}

	case ThermalTheme: // Dark red -> Yellow -> White
		return func(t float64) color.Color {
			lo, mid, hi := colorful.Color{R: 0.5}, colorful.Color{R: 1, G: 0.85}, colorful.Color{R: 1, G: 1, B: 1}
			if t < 0.5 {
				return lo.BlendLab(mid, t*2).Clamped()
			}
			return mid.BlendLab(hi, (t-0.5)*2).Clamped()
		}

	case MarineTheme: // Deep Blue -> Cyan -> White
		return func(t float64) color.Color {
			return hsv(240-(t*60), 1.0-(t*0.8), 0.4+(math.Pow(t, 0.6)*0.6))
		}

	default:
		return temperatureToColorEnhanced
	}
}

// temperatureToColorEnhanced spreads the gradient over four hue bands so small
// changes near the middle of the range stay visible
func temperatureToColorEnhanced(normalized float64) color.Color {
	t := math.Max(0, math.Min(1, normalized))

	switch {
	case t < 0.25:
		return hsv(260-(t*80), 1.0, 0.6+t)
	case t < 0.5:
		return hsv(240-((t-0.25)*240), 1.0, 0.85)
	case t < 0.75:
		return hsv(180-((t-0.5)*4*120), 1.0, 0.9)
	default:
		return hsv(60-((t-0.75)*4*60), 1.0, 0.95)
	}
}
