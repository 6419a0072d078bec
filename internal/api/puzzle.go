package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/logging"
	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

func (s *Server) puzzle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		writeError(w, http.StatusMethodNotAllowed, errorPayload{Error: "Method not allowed"})
		return
	}

	raw := r.URL.Query().Get("date")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, errorPayload{Error: "Date parameter is required (YYYY-MM-DD format)"})
		return
	}
	key, err := puzzle.ParseDateKey(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorPayload{
			Error:   "Invalid date parameter (YYYY-MM-DD format)",
			Details: err.Error(),
		})
		return
	}

	logger := logging.FromContext(r.Context(), s.logger).With(zap.Stringer("date", key))
	result, err := s.resolver.Resolve(r.Context(), key)
	var notFound *resolver.NotFoundError
	switch {
	case err == nil:
		logger.Info("puzzle served",
			zap.String("candidate", result.Candidate),
			zap.String("rule", result.Rule),
			zap.Bool("headless", result.UsedHeadless),
		)
		writeDocument(w, http.StatusOK, result.Document)
	case errors.As(err, &notFound):
		logger.Warn("puzzle not found", zap.Strings("tried", notFound.Tried))
		writeJSON(w, http.StatusNotFound, notFoundPayload{
			Error:   "Puzzle not found",
			Message: "The puzzle may not be available for this date",
			Tried:   nonNil(notFound.Tried),
		})
	default:
		s.unexpected(w, logger, key, err)
	}
}

// unexpected applies the configured failure policy.
func (s *Server) unexpected(w http.ResponseWriter, logger *zap.Logger, key puzzle.DateKey, err error) {
	if s.opts.FailurePolicy == FailurePolicyPlaceholder {
		logger.Error("resolution failed, serving placeholder", zap.Error(err))
		doc, perr := puzzle.PlaceholderDocument(key)
		if perr == nil {
			writeDocument(w, http.StatusOK, doc)
			return
		}
		err = fmt.Errorf("%w; placeholder: %w", err, perr)
	}
	logger.Error("resolution failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, errorPayload{
		Error:   "Failed to fetch puzzle data",
		Details: err.Error(),
	})
}

func nonNil(tried []string) []string {
	if tried == nil {
		return []string{}
	}
	return tried
}
