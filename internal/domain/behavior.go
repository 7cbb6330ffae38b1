package domain

import "context"

// RatingBehavior is the two-method contract invoked after a rating record
// has been attached to or removed from a node. Any component implementing
// it can be bound as the notification target, regardless of whether the
// binding delivers synchronously (inline in the submission workflow) or
// asynchronously (a message subscriber).
//
// Implementations must tolerate repeated and out-of-order delivery for the
// same logical change.
type RatingBehavior interface {
	OnRatingCreated(ctx context.Context, ref RatingRef) error
	OnRatingDeleted(ctx context.Context, ref RatingRef) error
}
