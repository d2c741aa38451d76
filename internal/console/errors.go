package console

import "errors"

var (
	errSelectRole   = errors.New("Please select a role.")
	errSignupUpdate = errors.New("signup cannot update an existing tenant")
	errDateOrder    = errors.New("End date must not be before start date")

	// ErrUnknownResource is returned for a name outside the resource catalogue.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrNoForm is returned for a resource without a master form.
	ErrNoForm = errors.New("no form for resource")

	// ErrUnknownPreset is returned for a preset name outside Presets.
	ErrUnknownPreset = errors.New("unknown permission preset")
	// ErrUnknownPermission is returned when toggling a key outside the catalogue.
	ErrUnknownPermission = errors.New("unknown permission")
)
