package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"privmsg/internal/domain"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory %s %s: %s", strings.ToLower(e.Method), e.Path, e.Status)
}

// HTTP is a keydir client.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the service at base.
func NewHTTP(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// PublishKey stores key as the current public key of key.User.
func (c *HTTP) PublishKey(ctx context.Context, key domain.PublishedKey) error {
	return c.do(ctx, http.MethodPut, "/keys/"+url.PathEscape(key.User.String()), key, nil)
}

// FetchKey returns the published key of user.
func (c *HTTP) FetchKey(ctx context.Context, user domain.UserID) (domain.PublishedKey, error) {
	var out domain.PublishedKey
	err := c.do(ctx, http.MethodGet, "/keys/"+url.PathEscape(user.String()), nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return domain.PublishedKey{}, fmt.Errorf("%s: %w", user, domain.ErrKeyNotFound)
	}
	if err != nil {
		return domain.PublishedKey{}, err
	}
	if out.Public.IsZero() {
		return domain.PublishedKey{}, fmt.Errorf("directory returned empty key for %s", user)
	}
	return out, nil
}

// SendEnvelope enqueues env for env.To.
func (c *HTTP) SendEnvelope(ctx context.Context, env domain.Envelope) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(env.To.String()), env, nil)
}

// FetchEnvelopes returns up to limit queued envelopes for user. A limit of 0
// fetches everything.
func (c *HTTP) FetchEnvelopes(ctx context.Context, user domain.UserID, limit int) ([]domain.Envelope, error) {
	path := "/msg/" + url.PathEscape(user.String())
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var envs []domain.Envelope
	if err := c.do(ctx, http.MethodGet, path, nil, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

// AckEnvelopes drops the first count queued envelopes for user.
func (c *HTTP) AckEnvelopes(ctx context.Context, user domain.UserID, count int) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(user.String())+"/ack", struct {
		Count int `json:"count"`
	}{Count: count}, nil)
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	}
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.Base+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.Base+path, nil)
	}
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	_ domain.Directory = (*HTTP)(nil)
	_ domain.Mailbox   = (*HTTP)(nil)
)
