package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/mtgate/internal/jobs"
	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/schema"
)

type metadataRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

type languagesResponse struct {
	LanguagePairs []locale.Pair  `json:"languagePairs"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type statusResponse struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type translateAsyncResponse struct {
	JobID string `json:"jobId"`
}

type asyncStatusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func (s *Server) handleLanguages(c echo.Context) error {
	req, err := decodeOptionalMetadata(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	pairs := s.opts.LanguagePairs
	if pairs == nil {
		pairs = []locale.Pair{}
	}
	return c.JSON(http.StatusOK, languagesResponse{
		LanguagePairs: pairs,
		Metadata:      req.Metadata,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	req, err := decodeOptionalMetadata(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	status := "ok"
	if !s.jobs.Ready() {
		status = "not_ok"
	} else if s.opts.Readiness != nil {
		if err := s.opts.Readiness(c.Request().Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			status = "not_ok"
		}
	}

	return c.JSON(http.StatusOK, statusResponse{
		Status:   status,
		Metadata: req.Metadata,
	})
}

func (s *Server) handleTranslate(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	req, err := schema.ValidateTranslateRequest(raw)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	resp, err := s.jobs.TranslateSync(c.Request().Context(), *req)
	if err != nil {
		return s.writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTranslateAsync(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	req, err := schema.ValidateTranslateRequest(raw)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	id, err := s.jobs.SubmitAsync(c.Request().Context(), *req)
	if err != nil {
		return s.writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, translateAsyncResponse{JobID: id.String()})
}

func (s *Server) handleTranslateAsyncStatus(c echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return s.writeJobError(c, err)
	}

	status, err := s.jobs.QueryStatus(id)
	if err != nil {
		return s.writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, asyncStatusResponse{
		Status: string(status.Status),
		Detail: status.Detail,
	})
}

func (s *Server) handleTranslateAsyncResult(c echo.Context) error {
	id, err := jobIDParam(c)
	if err != nil {
		return s.writeJobError(c, err)
	}

	resp, err := s.jobs.QueryResult(id)
	if err != nil {
		return s.writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// writeJobError maps a job error kind to its status code and JSend envelope.
func (s *Server) writeJobError(c echo.Context, err error) error {
	var jobErr *jobs.Error
	if !errors.As(err, &jobErr) {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unexpected error")
		return internalError(c, "Internal server error")
	}

	data := map[string]any{}
	if jobErr.JobID != "" {
		data["jobId"] = jobErr.JobID.String()
	}
	if jobErr.Detail != "" {
		data["detail"] = jobErr.Detail
	}
	if len(data) == 0 {
		data = nil
	}

	switch jobErr.Kind {
	case jobs.KindNotFound:
		return failNotFound(c, "No translation job found", data)
	case jobs.KindNotReady:
		return fail(c, http.StatusConflict, "Translation job is still running", data)
	case jobs.KindJobFailed:
		return fail(c, http.StatusUnprocessableEntity, "Translation job failed", data)
	case jobs.KindCapacityExceeded:
		c.Response().Header().Set("Retry-After", "1")
		return fail(c, http.StatusTooManyRequests, "Application busy", nil)
	case jobs.KindEngineFailure:
		s.logger.Warn().Err(err).Msg("synchronous translation failed")
		return serverError(c, http.StatusBadGateway, "Translation engine failure: "+jobErr.Detail)
	case jobs.KindUnavailable:
		c.Response().Header().Set("Retry-After", "1")
		return serverError(c, http.StatusServiceUnavailable, "Service is not accepting translation jobs")
	default:
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("internal job error")
		return internalError(c, "Internal server error")
	}
}

func jobIDParam(c echo.Context) (jobs.ID, error) {
	raw := strings.TrimSpace(c.Param("jobId"))
	if raw == "" {
		return "", &jobs.Error{Kind: jobs.KindNotFound}
	}
	return jobs.ID(raw), nil
}

// decodeOptionalMetadata accepts an empty body or a JSON object with optional metadata.
func decodeOptionalMetadata(c echo.Context) (metadataRequest, error) {
	var req metadataRequest
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return req, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}
