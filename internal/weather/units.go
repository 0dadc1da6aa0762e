package weather

import (
	"fmt"
	"strings"
)

// TemperatureUnit selects how temperatures are reported.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// ParseUnit accepts C/F as well as the spelled-out names.
func ParseUnit(s string) (TemperatureUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "c", "celsius":
		return Celsius, nil
	case "f", "fahrenheit":
		return Fahrenheit, nil
	}
	return "", fmt.Errorf("%w: unknown temperature unit %q", ErrInvalidQuery, s)
}

// Symbol returns the degree label for the unit.
func (u TemperatureUnit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// CelsiusToFahrenheit converts using F = C*9/5 + 32.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius is the inverse of CelsiusToFahrenheit.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// ConvertTemperature converts a Celsius reading into unit.
func ConvertTemperature(c float64, unit TemperatureUnit) float64 {
	if unit == Fahrenheit {
		return CelsiusToFahrenheit(c)
	}
	return c
}
