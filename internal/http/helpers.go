package http

import (
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/log"
)

// writeServiceError maps a service error onto the JSON error contract.
// Only unexpected failures are logged; their details never reach the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var inputErr *core.InputError
	switch {
	case isBodyTooLarge(err):
		RequestTooLargeError().Write(w)
	case errors.As(err, &inputErr):
		BadRequestError(inputErr.Msg).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("Expense not found").Write(w)
	default:
		ctx := r.Context()
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Expense operation failed", err, op,
			log.NewFields().WithComponent(log.ComponentHTTP).WithErrorType(log.ErrorTypeDatabase))
		InternalServerError().Write(w)
	}
}

// readExpenseInput parses and size-limits the request body.
func (s *Server) readExpenseInput(w http.ResponseWriter, r *http.Request) (core.ExpenseInput, error) {
	p, err := NewRequestBodyParser(w, r, s.maxBodyBytes)
	if err != nil {
		if isBodyTooLarge(err) {
			return core.ExpenseInput{}, err
		}
		if errors.Is(err, core.ErrInvalidInput) {
			return core.ExpenseInput{}, err
		}
		return core.ExpenseInput{}, core.ErrInvalidBody
	}
	return p.ExpenseInput()
}
