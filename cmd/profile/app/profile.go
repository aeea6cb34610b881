package app

import (
	"errors"
	"math"
	"time"

	"github.com/roman-kulish/hiking-logger/internal/archive"
	"github.com/roman-kulish/hiking-logger/internal/sensor"
)

const (
	standardSeaLevel = 1013.25 // hPa
	feetToMeters     = 0.3048

	// climbs and drops smaller than this are sensor noise
	gainHysteresis = 3.0 // m
)

var ErrNoSamples = errors.New("session has no samples")

// Point is one sample converted to altitude
type Point struct {
	Time        time.Time
	Altitude    float64 // m
	Temperature float64 // °C
}

type ProfileData struct {
	Session  *archive.Session
	Points   []Point
	SeaLevel float64 // hPa

	AltitudeMin, AltitudeMax       float64
	TemperatureMin, TemperatureMax float64
	Ascent, Descent                float64

	TimestampStart, TimestampEnd time.Time
}

// NewProfileData converts samples to altitudes. The barometer is calibrated
// against the elevation of the session's start location on the first sample,
// or against the standard atmosphere when the start elevation is unknown.
func NewProfileData(session *archive.Session, samples []archive.Sample) (*ProfileData, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	p := &ProfileData{
		Session:        session,
		Points:         make([]Point, 0, len(samples)),
		SeaLevel:       standardSeaLevel,
		AltitudeMin:    math.MaxFloat64,
		AltitudeMax:    -math.MaxFloat64,
		TemperatureMin: math.MaxFloat64,
		TemperatureMax: -math.MaxFloat64,
		TimestampStart: samples[0].Timestamp,
		TimestampEnd:   samples[len(samples)-1].Timestamp,
	}

	if session != nil && session.Start.Elevation != 0 && samples[0].Pressure != 0 {
		p.SeaLevel = sensor.SeaLevelForAltitude(float64(session.Start.Elevation)*feetToMeters, hPa(samples[0].Pressure))
	}

	var ref float64
	for i, s := range samples {
		pt := Point{
			Time:        s.Timestamp,
			Altitude:    sensor.Altitude(p.SeaLevel, hPa(s.Pressure)),
			Temperature: s.Celsius(),
		}
		p.Points = append(p.Points, pt)

		p.AltitudeMin = min(p.AltitudeMin, pt.Altitude)
		p.AltitudeMax = max(p.AltitudeMax, pt.Altitude)
		p.TemperatureMin = min(p.TemperatureMin, pt.Temperature)
		p.TemperatureMax = max(p.TemperatureMax, pt.Temperature)

		switch d := pt.Altitude - ref; {
		case i == 0:
			ref = pt.Altitude
		case d >= gainHysteresis:
			p.Ascent += d
			ref = pt.Altitude
		case d <= -gainHysteresis:
			p.Descent -= d
			ref = pt.Altitude
		}
	}

	return p, nil
}

// Duration is the time covered by the samples
func (p *ProfileData) Duration() time.Duration {
	return p.TimestampEnd.Sub(p.TimestampStart)
}

// At interpolates altitude and temperature at t. Times outside the samples
// are clamped to the first or last sample.
func (p *ProfileData) At(t time.Time) Point {
	pts := p.Points
	if !t.After(pts[0].Time) {
		return pts[0]
	}
	if !t.Before(pts[len(pts)-1].Time) {
		return pts[len(pts)-1]
	}

	// first point after t; pts[0] is before t so i >= 1
	lo, hi := 0, len(pts)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if pts[mid].Time.After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	a, b := pts[lo-1], pts[lo]
	span := b.Time.Sub(a.Time)
	if span <= 0 {
		return b
	}
	f := float64(t.Sub(a.Time)) / float64(span)

	return Point{
		Time:        t,
		Altitude:    a.Altitude + (b.Altitude-a.Altitude)*f,
		Temperature: a.Temperature + (b.Temperature-a.Temperature)*f,
	}
}

func hPa(pa uint32) float64 {
	return float64(pa) / 100
}
