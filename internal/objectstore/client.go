package objectstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

// ResourceKind selects the CDN pipeline for an upload.
type ResourceKind string

const (
	ResourceImage ResourceKind = "image"
	// ResourceVideo also carries audio.
	ResourceVideo ResourceKind = "video"
	ResourceRaw   ResourceKind = "raw"
)

// blurTransformation is applied to moderated images before their verdict.
const blurTransformation = "e_blur:2000"

// Asset describes an uploaded file.
type Asset struct {
	URL          string
	StorageID    string
	ResourceKind ResourceKind
}

// Client uploads and destroys CDN assets.
type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	folder     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the signing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a client from object storage settings.
func New(cfg config.ObjectStorage, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	c := &Client{
		cloudName:  strings.TrimSpace(cfg.CloudName),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		folder:     strings.Trim(strings.TrimSpace(cfg.Folder), "/"),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadResponse struct {
	SecureURL    string `json:"secure_url"`
	URL          string `json:"url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file at path as publicID under the configured folder.
func (c *Client) Upload(ctx context.Context, path, publicID string, kind ResourceKind) (Asset, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Asset{}, services.Wrap(services.ErrNotFound, "objectstore", "upload", "staged file missing", err)
		}
		return Asset{}, services.Wrap(services.ErrTransient, "objectstore", "upload", "open staged file", err)
	}
	defer file.Close()

	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	if c.folder != "" {
		params["folder"] = c.folder
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.apiKey

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, key := range sortedKeys(params) {
		if err := writer.WriteField(key, params[key]); err != nil {
			return Asset{}, services.Wrap(services.ErrTransient, "objectstore", "upload", "encode form", err)
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "objectstore", "upload", "encode form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "objectstore", "upload", "read staged file", err)
	}
	if err := writer.Close(); err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "objectstore", "upload", "encode form", err)
	}

	var resp uploadResponse
	if err := c.post(ctx, "upload", kind, writer.FormDataContentType(), &body, &resp); err != nil {
		return Asset{}, err
	}
	assetURL := resp.SecureURL
	if assetURL == "" {
		assetURL = resp.URL
	}
	if assetURL == "" || resp.PublicID == "" {
		return Asset{}, services.Wrap(services.ErrExternalTool, "objectstore", "upload", "response missing url or public_id", nil)
	}
	resourceKind := kind
	if resp.ResourceType != "" {
		resourceKind = ResourceKind(resp.ResourceType)
	}
	return Asset{URL: assetURL, StorageID: resp.PublicID, ResourceKind: resourceKind}, nil
}

// Destroy removes an asset. An asset that is already gone is not an error.
func (c *Client) Destroy(ctx context.Context, storageID, resourceKind string) error {
	if strings.TrimSpace(storageID) == "" {
		return services.Wrap(services.ErrValidation, "objectstore", "destroy", "storage id is required", nil)
	}
	kind := ResourceKind(resourceKind)
	if kind == "" {
		kind = ResourceImage
	}
	params := map[string]string{
		"public_id": storageID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.apiKey

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	var resp struct {
		Result string `json:"result"`
	}
	if err := c.post(ctx, "destroy", kind, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
		return err
	}
	switch resp.Result {
	case "ok", "not found":
		return nil
	default:
		return services.Wrap(services.ErrExternalTool, "objectstore", "destroy", fmt.Sprintf("unexpected result %q", resp.Result), nil)
	}
}

// BlurredURL derives the blurred delivery URL for an uploaded image.
func (c *Client) BlurredURL(assetURL string) (string, error) {
	return BlurredURL(assetURL)
}

// BlurredURL inserts the blur transformation after the upload segment of a
// delivery URL.
func BlurredURL(assetURL string) (string, error) {
	const marker = "/upload/"
	idx := strings.Index(assetURL, marker)
	if idx < 0 {
		return "", services.Wrap(services.ErrExternalTool, "objectstore", "blur", "url has no upload segment", nil)
	}
	cut := idx + len(marker)
	return assetURL[:cut] + blurTransformation + "/" + assetURL[cut:], nil
}

// HealthCheck reports whether credentials are present.
func (c *Client) HealthCheck(context.Context) error {
	if c.cloudName == "" || c.apiKey == "" || c.apiSecret == "" {
		return services.Wrap(services.ErrConfiguration, "objectstore", "health", "credentials are not configured", nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, action string, kind ResourceKind, contentType string, body io.Reader, target any) error {
	endpoint, err := url.JoinPath(c.baseURL, c.cloudName, string(kind), action)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "objectstore", action, "build url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "objectstore", action, "new request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "objectstore", action, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "objectstore", action, "read response", err)
	}
	if err := services.StatusError("objectstore", action, resp.StatusCode, payload); err != nil {
		return err
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return services.Wrap(services.ErrExternalTool, "objectstore", action, "decode response", err)
	}
	return nil
}

// sign computes the API signature: sha1 of the sorted key=value pairs joined
// by '&' with the secret appended.
func (c *Client) sign(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for _, key := range sortedKeys(params) {
		if params[key] == "" {
			continue
		}
		pairs = append(pairs, key+"="+params[key])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
