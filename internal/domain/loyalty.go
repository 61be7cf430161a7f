package domain

import (
	"math"
	"time"
)

// ShouldGetFreeWash reports whether a customer with the given paid completion
// count has just earned a free-wash credit. A required value of zero or less
// disables earning entirely.
func ShouldGetFreeWash(completed, required int64) bool {
	if required <= 0 {
		return false
	}
	return completed > 0 && completed%required == 0
}

// WashesUntilFree returns how many more paid completions are needed before
// the next credit. Reporting helper only; the completion handler's earning
// check is authoritative.
func WashesUntilFree(completed, required int64) int64 {
	if required <= 0 {
		return 0
	}
	return required - completed%required
}

// Revenue sums service prices over completed, paid orders. Redemptions
// contribute nothing.
func Revenue(orders []Order) int64 {
	var total int64
	for _, order := range orders {
		if order.Status != OrderStatusCompleted {
			continue
		}
		if order.PaymentMethod == PaymentMethodRedeemed {
			continue
		}
		total += order.Service.Price
	}
	return total
}

// AverageRating computes the mean star value over ratings with at least one
// star, rounded to one decimal. An empty input yields zero.
func AverageRating(ratings []Rating) float64 {
	var sum, count int64
	for _, rating := range ratings {
		if rating.Stars <= 0 {
			continue
		}
		sum += int64(rating.Stars)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}

// AverageServiceTime returns the mean wash duration in whole minutes over
// completed orders carrying both timestamps. An empty input yields zero.
func AverageServiceTime(orders []Order) int64 {
	var total time.Duration
	var count int64
	for _, order := range orders {
		if order.Status != OrderStatusCompleted || order.CompletedAt == nil || order.CreatedAt.IsZero() {
			continue
		}
		total += order.CompletedAt.Sub(order.CreatedAt)
		count++
	}
	if count == 0 {
		return 0
	}
	return int64(math.Round(total.Minutes() / float64(count)))
}

// MostPopularService returns the service ID appearing most often among
// completed orders. Ties keep the first-seen maximum.
func MostPopularService(orders []Order) string {
	return maxCountBy(orders, func(o Order) string { return o.Service.ID })
}

// TopWorker returns the worker ID with the most completed orders. Ties keep
// the first-seen maximum.
func TopWorker(orders []Order) string {
	return maxCountBy(orders, func(o Order) string { return o.WorkerID })
}

func maxCountBy(orders []Order, key func(Order) string) string {
	counts := make(map[string]int)
	var best string
	bestCount := 0
	for _, order := range orders {
		if order.Status != OrderStatusCompleted {
			continue
		}
		k := key(order)
		if k == "" {
			continue
		}
		counts[k]++
		// Strict greater-than: the first key to reach a count wins ties.
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}
