package eightsleep

import "math"

// The vendor drives the pod with an intensity level in [-100, 100];
// negative cools, positive heats, 0 is neutral. The level scale is finer
// than a displayed degree, so the mapping is piecewise linear and several
// adjacent levels can round to the same degree.
const (
	MinLevel = -100
	MaxLevel = 100

	// Below this level the pod is in its deep-cool tail: one degree per
	// level down to the 55°F floor.
	lowTailBoundary = -89
	lowTailFloorF   = 55.0

	coolingStartF = 66.0  // at lowTailBoundary
	neutralF      = 75.0  // at level 0
	heatingMaxF   = 110.0 // at MaxLevel
)

// Mapper converts between vendor levels and degrees Fahrenheit. Built once
// at startup, immutable thereafter.
type Mapper struct {
	tempForLevel map[int]float64
	levelForTemp map[int]int
}

func NewMapper() *Mapper {
	m := &Mapper{
		tempForLevel: make(map[int]float64, MaxLevel-MinLevel+1),
		levelForTemp: make(map[int]int),
	}
	for level := MinLevel; level <= MaxLevel; level++ {
		temp := computeTemperature(level)
		m.tempForLevel[level] = temp
		// First write wins: when several levels round to the same degree,
		// the inverse picks the coolest one. Deliberate and load-bearing;
		// do not switch to overwrite.
		key := int(temp)
		if _, ok := m.levelForTemp[key]; !ok {
			m.levelForTemp[key] = level
		}
	}
	return m
}

func computeTemperature(level int) float64 {
	switch {
	case level <= lowTailBoundary:
		return lowTailFloorF + float64(level-MinLevel)
	case level <= 0:
		span := float64(0 - lowTailBoundary)
		return math.Round(coolingStartF + float64(level-lowTailBoundary)*(neutralF-coolingStartF)/span)
	default:
		return math.Round(neutralF + float64(level)*(heatingMaxF-neutralF)/float64(MaxLevel))
	}
}

// TemperatureFor returns the display temperature (°F) for a level.
// Out-of-range levels are clamped.
func (m *Mapper) TemperatureFor(level int) float64 {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return m.tempForLevel[level]
}

// LevelFor returns the level whose display temperature matches, or false
// when the temperature is outside the representable range.
func (m *Mapper) LevelFor(tempF float64) (int, bool) {
	level, ok := m.levelForTemp[int(math.Round(tempF))]
	return level, ok
}

// ClampTemperature pins a requested temperature into the representable
// range.
func (m *Mapper) ClampTemperature(tempF float64) float64 {
	if tempF < m.MinTemperature() {
		return m.MinTemperature()
	}
	if tempF > m.MaxTemperature() {
		return m.MaxTemperature()
	}
	return tempF
}

func (m *Mapper) MinTemperature() float64 { return lowTailFloorF }

func (m *Mapper) MaxTemperature() float64 { return heatingMaxF }

// CelsiusFrom converts °F to °C truncated to two decimals, so float noise
// never reads as a temperature change.
func CelsiusFrom(tempF float64) float64 {
	c := (tempF - 32.0) * 5.0 / 9.0
	return math.Trunc(c*100) / 100
}

// FahrenheitFrom converts °C to °F.
func FahrenheitFrom(tempC float64) float64 {
	return tempC*9.0/5.0 + 32.0
}
