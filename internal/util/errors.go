package util

import "errors"

var (
	ErrInvalidCourseSize    = errors.New("course size must be non-negative")
	ErrCourseTooLarge       = errors.New("course exceeds cache capacity")
	ErrInsufficientCapacity = errors.New("cannot free enough space")
)
