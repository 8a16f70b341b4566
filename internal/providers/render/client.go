package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelshoot/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("render: api key is required")

// Options configures the HTTP render client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the try-on render API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type renderRequest struct {
	Model     string `json:"model"`
	RequestID string `json:"request_id"`
	Mode      string `json:"mode"`
	Garment   string `json:"garment_image"`
	Target    string `json:"target_id"`
}

type renderResponse struct {
	Output struct {
		ImageURL  string `json:"image_url"`
		ImageData string `json:"image_base64"`
		MIMEType  string `json:"mime_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("render: base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "tryon-v2"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Render submits one render and returns the image bytes. HTTP failures are
// returned as *Error so callers can classify them.
func (c *Client) Render(ctx context.Context, req Request) (*Result, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.InputRef) == "" || strings.TrimSpace(req.TargetRef) == "" {
		return nil, &Error{Class: ClassInvalid, Code: "missing_reference", Message: "garment and target are required"}
	}
	payload := renderRequest{
		Model:     c.model,
		RequestID: req.JobID,
		Mode:      string(req.Kind),
		Garment:   strings.TrimSpace(req.InputRef),
		Target:    strings.TrimSpace(req.TargetRef),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("render: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/renders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(err)
	}

	if resp.StatusCode >= 300 {
		rerr := &Error{Class: classForStatus(resp.StatusCode), StatusCode: resp.StatusCode, Code: "http_error"}
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			rerr.Message = detail.Message
			if detail.Code != "" {
				rerr.Code = detail.Code
			}
		} else {
			rerr.Message = strings.TrimSpace(string(raw))
		}
		return nil, rerr
	}

	var decoded renderResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Class: ClassUnavailable, Code: "bad_response", Message: "decode response: " + err.Error()}
	}
	if decoded.Code != "" {
		return nil, &Error{Class: ClassRejected, Code: decoded.Code, Message: decoded.Message}
	}

	out := &Result{
		URL:    strings.TrimSpace(decoded.Output.ImageURL),
		MIME:   decoded.Output.MIMEType,
		Width:  decoded.Output.Width,
		Height: decoded.Output.Height,
	}
	switch {
	case decoded.Output.ImageData != "":
		data, err := base64.StdEncoding.DecodeString(decoded.Output.ImageData)
		if err != nil {
			return nil, &Error{Class: ClassUnavailable, Code: "bad_image", Message: "decode inline image: " + err.Error()}
		}
		out.Data = data
	case out.URL != "":
		data, mime, err := c.download(ctx, out.URL)
		if err != nil {
			return nil, err
		}
		out.Data = data
		if out.MIME == "" {
			out.MIME = mime
		}
	default:
		return nil, &Error{Class: ClassUnavailable, Code: "empty_output", Message: "response carried no image"}
	}
	if out.MIME == "" {
		out.MIME = "image/png"
	}
	if out.Width == 0 || out.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data)); err == nil {
			out.Width, out.Height = cfg.Width, cfg.Height
		}
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("job_id", req.JobID).
		Str("request_id", decoded.RequestID).
		Int("bytes", len(out.Data)).
		Msg("render: image received")
	return out, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || parsed.Scheme == "" {
		return nil, "", &Error{Class: ClassUnavailable, Code: "bad_output_url", Message: "invalid image url " + imageURL}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("render: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", wrapTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &Error{Class: classForStatus(resp.StatusCode), StatusCode: resp.StatusCode, Code: "download_failed", Message: "download image"}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", wrapTransport(err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func wrapTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, Code: "deadline", Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Class: ClassNetwork, Code: "transport", Message: err.Error()}
}

var _ Renderer = (*Client)(nil)
