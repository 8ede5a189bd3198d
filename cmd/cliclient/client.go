package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	mandel "github.com/marben/deepzoom"
	"github.com/pkg/errors"
)

// client talks to the server's HTTP endpoints.
type client struct {
	base string
	http *http.Client
}

func (c *client) do(req *http.Request) (*http.Response, error) {
	hc := c.http
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// submit makes params the server's current job.
func (c *client) submit(ctx context.Context, params string, width, height int) (mandel.Job, error) {
	body, err := json.Marshal(map[string]any{"params": params, "width": width, "height": height})
	if err != nil {
		return mandel.Job{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/job", bytes.NewReader(body))
	if err != nil {
		return mandel.Job{}, errors.Wrap(err, "submit job")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return mandel.Job{}, errors.Wrap(err, "submit job")
	}
	defer resp.Body.Close()

	var job mandel.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return mandel.Job{}, errors.Wrap(err, "decode job")
	}
	return job, nil
}

// image waits for the server's current frame, or takes it as it is when
// partial is set.
func (c *client) image(ctx context.Context, partial bool) (image.Image, error) {
	url := c.base + "/image.png"
	if partial {
		url += "?partial=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch image")
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch image")
	}
	defer resp.Body.Close()

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}
