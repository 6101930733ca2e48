package domain

// Candle is one OHLC bar.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // bar open, Unix ms
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Malformed reports whether the bar has non-positive prices or inconsistent extremes.
func (c Candle) Malformed() bool {
	return c.Low <= 0 || c.High < c.Low || c.Open > c.High || c.Open < c.Low ||
		c.Close > c.High || c.Close < c.Low
}

// ZeroRange reports whether the bar has no intrabar range.
func (c Candle) ZeroRange() bool {
	return c.High == c.Low
}

// Signal is a candidate entry produced by an upstream indicator stage.
type Signal struct {
	Symbol           string    `json:"symbol"`
	Timestamp        int64     `json:"timestamp"` // Unix ms, matches a candle timestamp
	Direction        Direction `json:"direction"`
	Score            float64   `json:"score"`             // 0-100
	Confidence       float64   `json:"confidence"`        // provider-defined
	ModelProbability float64   `json:"model_probability"` // 0-100
	Tags             []string  `json:"tags,omitempty"`
}

// Context returns the snapshot stored on positions opened from s.
func (s Signal) Context() SignalContext {
	return SignalContext{
		Score:            s.Score,
		Confidence:       s.Confidence,
		ModelProbability: s.ModelProbability,
		Tags:             append([]string(nil), s.Tags...),
	}
}
