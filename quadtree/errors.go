package quadtree

const (
	// Returned when a tree is built with a capacity lower than 1 or a
	// boundary without a positive finite size.
	ErrTypeInvalidConfiguration = "invalid_configuration"

	// Returned when a point is outside the root boundary.
	ErrTypePointRejected = "point_rejected"

	// Returned when a point lands in a full node that cannot be subdivided
	// anymore.
	ErrTypeCapacityExceeded = "capacity_exceeded"
)
