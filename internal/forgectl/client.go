// Package forgectl implements the command line client for a running forged
// daemon: it wraps the HTTP API and renders results for a terminal.
package forgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forged/pkg/types"
)

// Client talks to one forged daemon.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient builds a client for the given base URL, e.g. "http://localhost:8001".
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response decoded from the daemon's error payload.
type APIError struct {
	StatusCode int
	Message    string
	Stage      string
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s (status %d, stage %s)", e.Message, e.StatusCode, e.Stage)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.getJSON(ctx, "/status", &out)
	return out, err
}

// Models fetches GET /models.
func (c *Client) Models(ctx context.Context) ([]types.Model, error) {
	var out types.ModelsResponse
	if err := c.getJSON(ctx, "/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// GenerateImage submits a text-to-image job and waits for the result.
func (c *Client) GenerateImage(ctx context.Context, req types.GenerateImageRequest) (types.GenerateResponse, error) {
	var out types.GenerateResponse
	err := c.postJSON(ctx, "/generate/image", req, &out)
	return out, err
}

// GenerateMesh uploads an image and waits for the reconstructed mesh.
func (c *Client) GenerateMesh(ctx context.Context, imagePath string) (types.GenerateResponse, error) {
	var out types.GenerateResponse

	f, err := os.Open(imagePath)
	if err != nil {
		return out, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/generate/mesh", &buf)
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.do(httpReq, &out)
	return out, err
}

// GenerateFull submits a text-to-3D pipeline job and waits for both stages.
func (c *Client) GenerateFull(ctx context.Context, req types.GeneratePipelineRequest) (types.PipelineResponse, error) {
	var out types.PipelineResponse
	err := c.postJSON(ctx, "/generate/full", req, &out)
	return out, err
}

// Download streams one artifact to dest. An empty dest writes the remote
// filename into the current directory.
func (c *Client) Download(ctx context.Context, jobID, filename, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/download/"+jobID+"/"+filename, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}
	if dest == "" {
		dest = filename
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}
	return dest, out.Close()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var payload types.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err != nil || payload.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Error, Stage: payload.Stage}
}
