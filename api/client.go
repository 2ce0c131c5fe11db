// Package api - Client des Status-Servers (rocal serve / rocal run --serve).
// Die Handle-Funktionen liegen in context.go und den Nachbardateien.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/7blacky7/rocal/envconfig"
)

// Client spricht mit dem Status-Server eines laufenden rocal-Prozesses.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		// Body als Meldung, falls kein JSON
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

// ClientFromEnvironment erstellt einen Client fuer ROCAL_HOST.
func ClientFromEnvironment() (*Client, error) {
	return NewClient(&url.URL{Scheme: "http", Host: envconfig.Host()}, http.DefaultClient), nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("rocal (%s %s) Go/%s", runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}
	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// List listet alle Pipelines des Prozesses.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/pipelines", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Show liefert Status und Zeiten einer Pipeline.
func (c *Client) Show(ctx context.Context, h Handle) (*PipelineInfo, error) {
	var pi PipelineInfo
	if err := c.do(ctx, http.MethodGet, "/api/pipelines/"+h.String(), nil, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// Reset startet eine neue Epoche der Pipeline.
func (c *Client) Reset(ctx context.Context, h Handle) (*PipelineInfo, error) {
	var pi PipelineInfo
	if err := c.do(ctx, http.MethodPost, "/api/pipelines/"+h.String()+"/reset", nil, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// Heartbeat prueft, ob der Server antwortet.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}
