package tasks

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/auth"
)

var operationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_operations_total",
		Help: "Task service operations by outcome",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(operationsTotal)
}

func outcomeOf(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrInvalidOwner):
		return "invalid_user"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
