package sensor

import "math"

// International barometric formula, pressures in hPa and altitudes in meters.

func Altitude(seaLevel, pressure float64) float64 {
	if seaLevel == 0 {
		return 0
	}
	return 44330 * (1 - math.Pow(pressure/seaLevel, 0.1903))
}

func SeaLevelForAltitude(altitude, pressure float64) float64 {
	return pressure / math.Pow(1-altitude/44330, 5.255)
}

func PressureForAltitude(altitude, seaLevel float64) float64 {
	return seaLevel * math.Pow(1-altitude/44330, 5.255)
}
