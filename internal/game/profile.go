package game

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxDisplayName = 32
	birthDateFmt   = "2006-01-02"
)

// ProfileUpdate is a validated updateProfile request.
type ProfileUpdate struct {
	DisplayName string
	BirthDate   time.Time
}

// ValidateProfileUpdate checks a display name and YYYY-MM-DD birth date.
func ValidateProfileUpdate(displayName, birthDate string, now time.Time) (ProfileUpdate, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return ProfileUpdate{}, fmt.Errorf("%w: display name is required", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(name) > maxDisplayName {
		return ProfileUpdate{}, fmt.Errorf("%w: display name longer than %d characters", ErrInvalidProfile, maxDisplayName)
	}
	born, err := time.Parse(birthDateFmt, strings.TrimSpace(birthDate))
	if err != nil {
		return ProfileUpdate{}, fmt.Errorf("%w: birth date must be YYYY-MM-DD", ErrInvalidProfile)
	}
	if born.After(now) {
		return ProfileUpdate{}, fmt.Errorf("%w: birth date is in the future", ErrInvalidProfile)
	}
	if born.Year() < 1900 {
		return ProfileUpdate{}, fmt.Errorf("%w: birth date before 1900", ErrInvalidProfile)
	}
	return ProfileUpdate{DisplayName: name, BirthDate: born}, nil
}
