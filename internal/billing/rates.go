package billing

// Per-unit USD rates by category. Static lookup table: volume × rate,
// no rounding until formatted for display.
var rates = map[Category]float64{
	CategoryEmail:    0.0004,
	CategorySMS:      0.0075,
	CategoryWhatsApp: 0.005,
	CategoryAITokens: 0.000002,
	CategoryAIImages: 0.04,
	CategoryDBReads:  0.0000006,
	CategoryDBWrites: 0.0000018,
}

// CostOf returns the USD cost of the given volume in a category.
// Unknown categories cost nothing rather than erroring.
func CostOf(c Category, volume int64) float64 {
	return rates[c] * float64(volume)
}
