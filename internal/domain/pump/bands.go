package pump

import "math"

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// Band awards Points to values in [Min, Max).
type Band struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Points float64 `yaml:"points"`
}

// Bands is an ordered scoring table. The first band containing the value wins;
// values outside every band score zero.
type Bands []Band

// Score returns the points for v
func (b Bands) Score(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	for _, band := range b {
		if v >= band.Min && v < band.Max {
			return band.Points
		}
	}
	return 0
}

// MaxPoints returns the largest reward in the table
func (b Bands) MaxPoints() float64 {
	max := 0.0
	for _, band := range b {
		max = math.Max(max, band.Points)
	}
	return max
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
