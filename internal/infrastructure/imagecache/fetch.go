package imagecache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Ошибки загрузки изображений
var (
	ErrImageFetch  = errors.New("image fetch failed")
	ErrImageDecode = errors.New("image decode failed")
)

// HTTPDoer is satisfied by *http.Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetch downloads url and returns it as a base64 data URI
func (c *Cache) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := c.doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrImageFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrImageFetch, err)
	}
	if int64(len(body)) > c.cfg.MaxImageBytes {
		return "", fmt.Errorf("%w: image larger than %d bytes", ErrImageDecode, c.cfg.MaxImageBytes)
	}

	return encodeDataURI(resp.Header.Get("Content-Type"), body)
}

// encodeDataURI builds "data:<type>;base64,<body>". The declared type is used
// when it is an image type, otherwise the type is sniffed from the bytes.
func encodeDataURI(contentType string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrImageDecode)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: %q is not an image", ErrImageDecode, mediaType)
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}
