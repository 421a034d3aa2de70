package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrDriveNotFound is returned when no drive matches the lookup key.
	ErrDriveNotFound = errors.New("drive not found")
	// ErrSessionNotFound is returned when no active bench session exists.
	ErrSessionNotFound = errors.New("bench session not found")
	// ErrSettingNotFound is returned when a settings key is absent.
	ErrSettingNotFound = errors.New("setting not found")
)
