package service

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// mapTicketError converts repository and state machine errors for one ticket.
func mapTicketError(err error, ticketID string) error {
	if err == nil {
		return nil
	}
	var transitionErr *domain.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		return apperrors.NewInvalidTransition(err, map[string]any{
			"ticket_id": ticketID,
			"from":      transitionErr.From,
			"to":        transitionErr.To,
		})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, repository.ErrStale):
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, domain.ErrEmptyResponse), errors.Is(err, domain.ErrMissingApprover):
		return apperrors.NewValidationError(err.Error(), map[string]any{"ticket_id": ticketID})
	}
	return apperrors.MapError(err)
}

func validEmail(addr string) bool {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	return err == nil && parsed.Address == strings.TrimSpace(addr)
}
