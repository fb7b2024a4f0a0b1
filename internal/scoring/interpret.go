package scoring

// band labels scores at or above Lower.
type band struct {
	Lower float64
	Label string
}

var (
	physicalBands = []band{
		{80, "Highly dispersed"},
		{60, "Moderately dispersed"},
		{0, "Concentrated"},
	}
	categoricalBands = []band{
		{75, "Low concentration"},
		{50, "Moderate concentration"},
		{25, "High concentration"},
		{0, "Very high concentration"},
	}
	compositeBands = []band{
		{80, "Highly decentralized"},
		{60, "Moderately decentralized"},
		{40, "Weakly decentralized"},
		{0, "Centralized"},
	}
)

// matchBand returns the label of the first band whose lower limit the score reaches.
// Bands are ordered from highest to lowest.
func matchBand(score float64, bands []band) string {
	for _, b := range bands {
		if score >= b.Lower {
			return b.Label
		}
	}
	return bands[len(bands)-1].Label
}

// InterpretPhysical labels a Physical Distribution Index.
func InterpretPhysical(score float64) string { return matchBand(score, physicalBands) }

// InterpretCategorical labels a Jurisdictional or Infrastructure index.
func InterpretCategorical(score float64) string { return matchBand(score, categoricalBands) }

// InterpretComposite labels a GDI.
func InterpretComposite(score float64) string { return matchBand(score, compositeBands) }
