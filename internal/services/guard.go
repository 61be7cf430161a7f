package services

import (
	domain "github.com/washclub/api/internal/domain"
)

// The transition guard decides whether a before/after snapshot pair
// represents a fresh occurrence of a transition. The change feed redelivers
// notifications and may deliver them out of order; checking the edge rather
// than the state keeps every handler idempotent: a redelivery whose before
// snapshot already carries the target status simply does not fire.

// CompletionFired reports whether the pair crosses into completed.
func CompletionFired(before, after *domain.Order) bool {
	if before == nil || after == nil {
		return false
	}
	return before.Status != domain.OrderStatusCompleted && after.Status == domain.OrderStatusCompleted
}

// CancellationFired reports whether the pair crosses into cancelled.
func CancellationFired(before, after *domain.Order) bool {
	if before == nil || after == nil {
		return false
	}
	return before.Status != domain.OrderStatusCancelled && after.Status == domain.OrderStatusCancelled
}

// RatingAdded reports whether the pair gained a rating.
func RatingAdded(before, after *domain.Order) bool {
	if before == nil || after == nil {
		return false
	}
	return !before.HasRating() && after.HasRating()
}
