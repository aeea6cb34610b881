package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/hiking-logger/internal/archive"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := archive.NewSqliteStore(config.DBPath, archive.WithLogger(logger))
	defer store.Close()

	if config.List {
		return listSessions(ctx, store, config, logger)
	}
	return renderSession(ctx, store, config, logger)
}

func listSessions(ctx context.Context, store *archive.SqliteStore, config *Config, logger *slog.Logger) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		logger.Info("session",
			slog.Int64("id", s.ID),
			slog.String("start", s.StartTime.In(config.TimeZone).Format(time.DateTime)),
			slog.String("age", humanize.Time(s.StartTime)),
			slog.String("duration", s.Duration().String()),
			slog.String("from", s.Start.Name),
			slog.String("to", s.End.Name),
			slog.String("samples", humanize.Comma(int64(s.Samples))))
	}
	logger.Info("sessions listed", slog.Int("count", len(sessions)))
	return nil
}

func renderSession(ctx context.Context, store *archive.SqliteStore, config *Config, logger *slog.Logger) error {
	session, err := store.Session(ctx, config.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %d not found", config.SessionID)
	}
	if err != nil {
		return err
	}

	samples, err := store.Samples(ctx, session.ID)
	if err != nil {
		return err
	}

	profile, err := NewProfileData(session, samples)
	if err != nil {
		return fmt.Errorf("session %d: %w", session.ID, err)
	}

	logger.Info("finished reading samples",
		slog.Group("stats",
			slog.String("start", profile.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("end", profile.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("samples", humanize.Comma(int64(len(profile.Points)))),
			slog.String("minAltitude", fmt.Sprintf("%0.1fm", profile.AltitudeMin)),
			slog.String("maxAltitude", fmt.Sprintf("%0.1fm", profile.AltitudeMax)),
			slog.String("minTemperature", fmt.Sprintf("%0.2f°C", profile.TemperatureMin)),
			slog.String("maxTemperature", fmt.Sprintf("%0.2f°C", profile.TemperatureMax)),
		))

	renderer, err := NewProfileRenderer(RenderConfig{
		Width:         config.Width,
		Height:        config.Height,
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating profile renderer: %w", err)
	}

	logger.Info("rendering profile",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(profile)
	if err != nil {
		return fmt.Errorf("rendering profile: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	if err = encodeImage(out, img, config.Format); err != nil {
		_ = out.Close()
		return fmt.Errorf("encoding image: %w", err)
	}
	return out.Close()
}

func encodeImage(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})
	default:
		return png.Encode(w, img)
	}
}
