// Package archive exports the hike log to removable storage and catalogues
// the exported sessions in SQLite for later analysis.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/hiking-logger/internal/hikelog"
)

// Catalogue records exported sessions
type Catalogue interface {
	StoreSession(ctx context.Context, session hikelog.Session) (int64, error)
	StoreSummaries(ctx context.Context, summaries []hikelog.Summary) error
}

func WithCatalogue(c Catalogue) func(e *Exporter) {
	return func(e *Exporter) {
		e.catalogue = c
	}
}

func WithExporterLogger(logger *slog.Logger) func(e *Exporter) {
	return func(e *Exporter) {
		e.logger = logger.With(slog.String("component", "archive"))
	}
}

// Exporter writes the log to a volume and, when a catalogue is set, records
// every exported session in it.
type Exporter struct {
	volume    hikelog.Volume
	catalogue Catalogue
	logger    *slog.Logger
}

func NewExporter(vol hikelog.Volume, options ...func(e *Exporter)) *Exporter {
	e := Exporter{
		volume: vol,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&e)
	}
	return &e
}

// Archive exports every session and the summary ring. An empty ring is not an
// error. Sessions are catalogued only after all files are written.
func (e *Exporter) Archive(ctx context.Context, log *hikelog.Log) error {
	sessions, err := log.SaveLog(e.volume)
	if err != nil {
		return fmt.Errorf("saving log: %w", err)
	}

	if err = log.SaveSummaries(e.volume); err != nil && !errors.Is(err, hikelog.ErrNoSummaries) {
		return fmt.Errorf("saving summaries: %w", err)
	}

	var samples, size uint64
	for _, s := range sessions {
		samples += uint64(len(s.Entries))
		size += uint64(4 + hikelog.HeaderSize + len(s.Entries)*hikelog.EntrySize)
	}

	e.logger.Info("log exported",
		slog.Int("sessions", len(sessions)),
		slog.String("samples", humanize.Comma(int64(samples))),
		slog.String("size", humanize.Bytes(size)))

	if e.catalogue == nil {
		return nil
	}

	for _, s := range sessions {
		if err = ctx.Err(); err != nil {
			return err
		}
		if _, err = e.catalogue.StoreSession(ctx, s); err != nil {
			return fmt.Errorf("cataloguing session %s: %w", hikelog.SessionFileName(s.Header.StartTime), err)
		}
	}

	summaries, err := log.Ring().Summaries()
	if err != nil {
		return fmt.Errorf("reading summaries: %w", err)
	}
	if err = e.catalogue.StoreSummaries(ctx, summaries); err != nil {
		return fmt.Errorf("cataloguing summaries: %w", err)
	}

	return nil
}
