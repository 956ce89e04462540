package picker

import "errors"

var (
	// ErrNotMounted is returned by widget operations before Mount or after Unmount.
	ErrNotMounted = errors.New("picker not mounted")
	// ErrAlreadyMounted is returned when Mount is called twice.
	ErrAlreadyMounted = errors.New("picker already mounted")
	// ErrUnmounted is returned when Mount is called after Unmount.
	ErrUnmounted = errors.New("picker was unmounted")

	// ErrDetached is returned by control operations when the control is not attached to a map.
	ErrDetached = errors.New("control detached")
	// ErrNoSuchSuggestion is returned when selecting a suggestion index that is not listed.
	ErrNoSuchSuggestion = errors.New("no such suggestion")
	// ErrLocateBusy is returned when the locate control is activated while a request is in flight.
	ErrLocateBusy = errors.New("locate request already in progress")

	// ErrBindingReleased is returned when registering on a released binding.
	ErrBindingReleased = errors.New("control binding released")
	// ErrElementExists is returned when two controls register the same element id.
	ErrElementExists = errors.New("map element already exists")
)
