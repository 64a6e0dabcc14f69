package mixnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefinitionCode classifies network definition failures.
type DefinitionCode string

const (
	DefinitionFetchFailed   DefinitionCode = "DEFINITION_FETCH_FAILED"
	DefinitionSchemaInvalid DefinitionCode = "DEFINITION_SCHEMA_INVALID"
	DefinitionExpired       DefinitionCode = "DEFINITION_EXPIRED"
)

const (
	maxDefinitionBytes = 1 << 20
	maxGateways        = 64
)

// Gateway is an entry point into the mix network.
type Gateway struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// NetworkDefinition describes the mix network the daemon should join. It is
// published at a well-known URL.
type NetworkDefinition struct {
	Version     int       `json:"version"`
	Network     string    `json:"network"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Gateways    []Gateway `json:"gateways"`
}

// NetworkDefinitionError reports why a definition was not accepted.
type NetworkDefinitionError struct {
	Code DefinitionCode
	Err  error
}

func (e *NetworkDefinitionError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *NetworkDefinitionError) Unwrap() error { return e.Err }

// DefinitionCodeOf extracts the code from err.
func DefinitionCodeOf(err error) (DefinitionCode, bool) {
	var de *NetworkDefinitionError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// ParseNetworkDefinition decodes raw strictly and validates it against now.
func ParseNetworkDefinition(raw []byte, now time.Time) (NetworkDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var def NetworkDefinition
	if err := dec.Decode(&def); err != nil {
		return NetworkDefinition{}, schemaErr(err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return NetworkDefinition{}, schemaErr("unexpected trailing json tokens")
	}
	if err := def.validate(); err != nil {
		return NetworkDefinition{}, err
	}
	if !def.ExpiresAt.After(now) {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionExpired, Err: errors.New("definition expired")}
	}
	return def, nil
}

func (d NetworkDefinition) validate() error {
	if d.Version < 1 {
		return schemaErr("version must be >= 1")
	}
	if strings.TrimSpace(d.Network) == "" {
		return schemaErr("network is required")
	}
	if d.GeneratedAt.IsZero() || d.ExpiresAt.IsZero() {
		return schemaErr("generated_at and expires_at are required")
	}
	if !d.ExpiresAt.After(d.GeneratedAt) {
		return schemaErr("expires_at must be after generated_at")
	}
	if len(d.Gateways) < 1 || len(d.Gateways) > maxGateways {
		return schemaErr(fmt.Sprintf("gateways size must be within [1..%d]", maxGateways))
	}
	seen := make(map[string]bool, len(d.Gateways))
	for _, g := range d.Gateways {
		if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Address) == "" {
			return schemaErr("gateway entry is invalid")
		}
		if seen[g.ID] {
			return schemaErr("duplicate gateway id " + g.ID)
		}
		seen[g.ID] = true
	}
	return nil
}

// FetchNetworkDefinition downloads and validates the definition at rawURL.
func FetchNetworkDefinition(ctx context.Context, hc *http.Client, rawURL string, now time.Time) (NetworkDefinition, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionFetchFailed, Err: fmt.Errorf("invalid definition url %q", rawURL)}
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionFetchFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionFetchFailed, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionFetchFailed, Err: fmt.Errorf("get %s: %s", u.Redacted(), resp.Status)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDefinitionBytes+1))
	if err != nil {
		return NetworkDefinition{}, &NetworkDefinitionError{Code: DefinitionFetchFailed, Err: err}
	}
	if len(raw) > maxDefinitionBytes {
		return NetworkDefinition{}, schemaErr("definition too large")
	}
	return ParseNetworkDefinition(raw, now)
}

func schemaErr(msg string) error {
	return &NetworkDefinitionError{Code: DefinitionSchemaInvalid, Err: errors.New(msg)}
}
