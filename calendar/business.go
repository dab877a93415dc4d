package calendar

// =============================================================================
// BUSINESS DAYS - Monday to Friday, no holiday table
// =============================================================================

// AddBusinessDays returns the date reached by walking forward from start one
// calendar day at a time and counting only Monday–Friday, stopping on the n-th
// counted day. The start day itself is never counted. The result is always a
// business day: with n <= 0 a weekday start is returned as is and a weekend
// start rolls forward to the following Monday.
//
// Example: AddBusinessDays(2024-01-02, 30) == 2024-02-13.
func AddBusinessDays(start Date, n int) Date {
	current := start
	if n <= 0 {
		for current.IsWeekend() {
			current = current.AddDays(1)
		}
		return current
	}
	for counted := 0; counted < n; {
		current = current.AddDays(1)
		if current.IsBusinessDay() {
			counted++
		}
	}
	return current
}
