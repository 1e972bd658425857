// Package ocr talks to the external handwriting recognition service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/retry"
)

// Recognizer extracts handwritten text from a prescription image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, filename string) (string, error)
}

// Client is the HTTP Recognizer. The service accepts a multipart "image"
// field on POST /predict and answers {"text": "..."}.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

type predictResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Recognize posts the image and returns the recognized text. Errors carry
// apperrors kinds: BadInput for unreadable images, Timeout when the call
// runs past the configured timeout, Unavailable otherwise.
func (c *Client) Recognize(ctx context.Context, image []byte, filename string) (string, error) {
	if len(image) == 0 {
		return "", apperrors.BadInput("image is empty", nil)
	}
	if filename == "" {
		filename = "prescription.png"
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", apperrors.Internal("build ocr request", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", apperrors.Internal("build ocr request", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.Internal("build ocr request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return "", apperrors.Internal("build ocr request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", apperrors.Timeout("handwriting recognition timed out", err)
		}
		return "", apperrors.Unavailable("handwriting recognition service unreachable", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", apperrors.Timeout("handwriting recognition timed out", err)
		}
		return "", apperrors.Unavailable("read ocr response", err)
	}
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 500:
		return "", apperrors.Unavailable(fmt.Sprintf("handwriting recognition failed with status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		msg := out.Error
		if msg == "" {
			msg = "image could not be processed"
		}
		return "", apperrors.BadInput(msg, nil)
	case decodeErr != nil:
		return "", apperrors.Unavailable("handwriting recognition returned a malformed response", decodeErr)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", apperrors.BadInput("no text recognized in image", nil)
	}
	return text, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Ping checks GET /health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ocr health returned status %d", resp.StatusCode)
	}
	return nil
}

// Warmup waits for the service with exponential backoff so the first
// recognition does not pay for model loading. Failure is logged, not fatal.
func (c *Client) Warmup(ctx context.Context, cfg retry.Config) error {
	err := retry.Do(ctx, cfg, c.Ping, func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", next).Msg("ocr service not ready")
	})
	if err != nil {
		log.Error().Err(err).Str("url", c.baseURL).Msg("ocr warmup failed; recognition will be unavailable until the service responds")
		return err
	}
	log.Info().Str("url", c.baseURL).Msg("ocr service ready")
	return nil
}
