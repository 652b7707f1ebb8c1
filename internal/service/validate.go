package service

import (
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/matchday/internal/apperror"
)

const (
	MaxTeamNameLength = 100
	MaxUserNameLength = 100
	MaxGoals          = 99
)

// validateID rejects ids that could not have been issued by xid.
func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if _, err := xid.FromString(id); err != nil {
		return apperror.ValidationFailed(field, "invalid "+field)
	}
	return nil
}

func validateGoals(field string, goals int) error {
	if goals < 0 || goals > MaxGoals {
		return apperror.ValidationFailed(field, field+" must be between 0 and 99")
	}
	return nil
}
