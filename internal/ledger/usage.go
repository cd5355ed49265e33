package ledger

// Band classifies how much of a context window a total uses.
type Band string

const (
	BandOK      Band = "ok"
	BandWarning Band = "warning"
	BandError   Band = "error"
)

const warningRatio = 0.8

// Usage is a total measured against a context window.
type Usage struct {
	Tokens int     `json:"tokens"`
	Window int     `json:"window"`
	Ratio  float64 `json:"ratio"`
	Band   Band    `json:"band"`
}

// Classify places total in a band: below 80% of window is ok, below 100%
// is a warning, at or above the window is an error. A non-positive window
// is ok with ratio 0.
func Classify(total, window int) Usage {
	u := Usage{Tokens: total, Window: window, Band: BandOK}
	if window <= 0 {
		return u
	}
	u.Ratio = float64(total) / float64(window)
	switch {
	case u.Ratio >= 1.0:
		u.Band = BandError
	case u.Ratio >= warningRatio:
		u.Band = BandWarning
	}
	return u
}
