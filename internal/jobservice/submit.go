package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/go-playground/validator/v10"

	"imagedash/internal/domain"
)

// SubmitRequest is one image-to-image generation request.
type SubmitRequest struct {
	Prompt      string `validate:"required"`
	Image       []byte `validate:"required,min=1"`
	Filename    string
	ContentType string
}

// ValidationError describes input rejected before any request was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", strings.ToLower(e.Field), e.Reason)
}

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// Validate checks the request against the client's rules.
func (c *Client) Validate(req SubmitRequest) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := c.validate.Struct(req); err != nil {
		return toValidationError(err, c.maxUpload)
	}
	if err := c.validate.Var(req.Image, fmt.Sprintf("max=%d", c.maxUpload)); err != nil {
		return &ValidationError{Field: "Image", Reason: fmt.Sprintf("file size exceeds %s", humanBytes(c.maxUpload))}
	}
	return nil
}

func toValidationError(err error, limit int64) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "min":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("file size exceeds %s", humanBytes(limit))}
	}
	return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
}

func humanBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit validates req and posts it to /generate. Validation failures wrap
// domain.ErrValidation and never reach the network; rejected submissions
// wrap domain.ErrSubmit.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := c.Validate(req); err != nil {
		return "", err
	}
	body, contentType, err := encodeSubmission(req)
	if err != nil {
		return "", fmt.Errorf("jobservice: encode submission: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/generate", body)
	if err != nil {
		return "", fmt.Errorf("jobservice: build submit request: %w: %w", domain.ErrSubmit, err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("jobservice: submit: %w: %w", domain.ErrSubmit, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("jobservice: read submit response: %w: %w", domain.ErrSubmit, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newHTTPError("submit", resp.StatusCode, raw, domain.ErrSubmit)
	}

	var decoded submitResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			c.logger.Warn().Err(err).Msg("jobservice: submit response is not JSON")
		}
	}
	c.logger.Info().Str("job_id", decoded.JobID).Int("image_bytes", len(req.Image)).Msg("jobservice: submitted job")
	return decoded.JobID, nil
}

func encodeSubmission(req SubmitRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "image"
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = http.DetectContentType(req.Image)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("prompt", strings.TrimSpace(req.Prompt)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
