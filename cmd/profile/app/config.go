package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	Width         int
	Height        int
	List          bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    ClassicTheme,
		TimeZone: time.Local,
		Width:    defaultPlotWidth,
		Height:   defaultPlotHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs reads the command line in args. Usage is printed to usage when the
// arguments are invalid.
func ParseArgs(args []string, usage io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(usage)

	var imageFormat, theme, tz string
	fs.StringVar(&c.DBPath, "db", "", "Path to the catalogue database file")
	fs.Int64Var(&c.SessionID, "s", 0, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(ClassicTheme), "Temperature colour theme. [classic, thermal, marine, grayscale, enhanced]")
	fs.StringVar(&tz, "tz", "Local", "Time zone of the time scale")
	fs.IntVar(&c.Width, "width", defaultPlotWidth, "Width of the plot area in pixels")
	fs.IntVar(&c.Height, "height", defaultPlotHeight, "Height of the plot area in pixels")
	fs.BoolVar(&c.List, "list", false, "List the catalogued sessions and exit")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as altitude and time scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.List:
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.Width < minPlotSize || c.Height < minPlotSize:
		err = fmt.Errorf("plot must be at least %dx%d pixels", minPlotSize, minPlotSize)
	}
	if err == nil {
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if !validTheme(ColorTheme(strings.ToLower(theme))) {
			err = fmt.Errorf("invalid colour theme: %s", theme)
		} else if c.TimeZone, err = time.LoadLocation(tz); err != nil {
			err = fmt.Errorf("invalid time zone: %w", err)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(strings.ToLower(theme))
	if c.OutputFile != "" {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return c, nil
}
