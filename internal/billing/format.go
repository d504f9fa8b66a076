package billing

import "fmt"

// FormatUSD renders a cost for display: two decimal places, four when
// the value is below one cent so sub-cent accruals do not render as $0.00.
func FormatUSD(v float64) string {
	if v > 0 && v < 0.01 {
		return fmt.Sprintf("$%.4f", v)
	}
	return fmt.Sprintf("$%.2f", v)
}
