// Package api uploads exported session recordings to a recordings server.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/towsim/pushback/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/sessions"
)

// Client talks to the recordings server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client. A trailing slash on baseURL is ignored.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck reports whether the server answers 200 on its health endpoint.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("healthcheck request: %w", err)
	}
	return c.do(req, "healthcheck")
}

// Upload streams the file at filePath as a multipart form together with the
// session metadata.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(form, file, filepath.Base(filePath), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "upload")
}

// writeForm writes the metadata fields followed by the file part.
func (c *Client) writeForm(form *multipart.Writer, file io.Reader, name string, meta core.UploadMetadata) error {
	fields := []struct{ key, value string }{
		{"secret", c.apiKey},
		{"filename", name},
		{"sessionId", meta.SessionID},
		{"truckId", meta.TruckID},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"distance", strconv.FormatFloat(meta.Distance, 'f', 3, 64)},
		{"endFrame", strconv.FormatUint(uint64(meta.EndFrame), 10)},
	}
	for _, f := range fields {
		if err := form.WriteField(f.key, f.value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return form.Close()
}

func (c *Client) do(req *http.Request, what string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", what, resp.StatusCode)
	}
	return nil
}
