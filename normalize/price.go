package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pevans/mallfed/mall"
)

var numberPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// Labels of amounts printed next to a price that are not the price:
// shipping fees, reward points and coupon values.
var sideLabels = []string{"배송비", "배송료", "택배비", "적립금", "적립", "포인트", "쿠폰"}

type amount struct {
	value  int64
	marked bool
}

// parsePrice reads a displayed price. The rules, in order:
//
//	shipping, point and coupon amounts -> ignored
//	no digits left                     -> not a price
//	one number                         -> that number
//	several currency-marked numbers    -> min is the price, max the original
//	several unmarked numbers           -> the last one
//
// A number is currency-marked when 원 or KRW follows it or ₩ precedes it.
// Thousands separators are dropped and fractions truncated.
func parsePrice(raw string) (price, original int64, ok bool) {
	amounts := scanAmounts(raw)
	if len(amounts) == 0 {
		return 0, 0, false
	}
	if len(amounts) == 1 {
		return amounts[0].value, 0, true
	}

	var marked []int64
	for _, a := range amounts {
		if a.marked {
			marked = append(marked, a.value)
		}
	}

	switch len(marked) {
	case 0:
		return amounts[len(amounts)-1].value, 0, true
	case 1:
		return marked[0], 0, true
	}

	lo, hi := marked[0], marked[0]
	for _, v := range marked[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		hi = 0
	}
	return lo, hi, true
}

func scanAmounts(raw string) []amount {
	var out []amount
	prevEnd := 0
	for _, loc := range numberPattern.FindAllStringIndex(raw, -1) {
		digits := raw[loc[0]:loc[1]]
		if dot := strings.IndexByte(digits, '.'); dot >= 0 {
			digits = digits[:dot]
		}
		digits = strings.ReplaceAll(digits, ",", "")

		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			continue
		}

		before := strings.TrimSpace(raw[:loc[0]])
		after := strings.TrimSpace(raw[loc[1]:])
		marked := strings.HasPrefix(after, "원") ||
			strings.HasPrefix(strings.ToUpper(after), "KRW") ||
			strings.HasSuffix(before, "₩") || strings.HasSuffix(before, "￦")

		label := raw[prevEnd:loc[0]]
		prevEnd = loc[1]
		if isSideLabel(label) {
			continue
		}

		out = append(out, amount{value: v, marked: marked})
	}
	return out
}

// isSideLabel reports whether the text before an amount names a shipping
// fee, points or a coupon value. A coupon-applied price ("쿠폰적용가") is
// still a price.
func isSideLabel(label string) bool {
	if strings.Contains(label, "적용가") {
		return false
	}
	for _, l := range sideLabels {
		if strings.Contains(label, l) {
			return true
		}
	}
	return false
}

// correctTruncation applies the per-mall heuristic for prices displayed in
// thousands ("310" meaning 310,000). It reports whether a correction
// happened.
func correctTruncation(price int64, p mall.Pricing) (int64, bool) {
	if p.DisableHeuristic || p.TruncationThreshold <= 0 || p.Multiplier <= 1 {
		return price, false
	}
	if price <= 0 || price >= int64(p.TruncationThreshold) {
		return price, false
	}
	return price * int64(p.Multiplier), true
}
