// Package e2e drives a running ezweb server through its HTTP API with
// godog scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config points the suite at a server. OwnerToken must be a bearer token
// for the owner of SiteID.
type Config struct {
	BaseURL    string
	OwnerToken string
	AdminToken string
	SiteID     string
}

// TestContext carries one scenario's state: the last response and the
// aliases scenarios use instead of server-assigned ids.
type TestContext struct {
	cfg    Config
	client *http.Client
	run    string

	lastStatus int
	lastBody   []byte
	ids        map[string]int64
}

func NewTestContext(cfg Config) *TestContext {
	return &TestContext{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		run:    strconv.FormatInt(time.Now().UnixNano(), 36),
		ids:    map[string]int64{},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.ids = map[string]int64{}
}

func (tc *TestContext) SiteID() string     { return tc.cfg.SiteID }
func (tc *TestContext) OwnerToken() string { return tc.cfg.OwnerToken }
func (tc *TestContext) AdminToken() string { return tc.cfg.AdminToken }

// Unique suffixes name with the run id so registry names never collide
// with earlier runs against the same server.
func (tc *TestContext) Unique(name string) string {
	return name + " " + tc.run
}

func (tc *TestContext) Remember(alias string, id int64) {
	tc.ids[alias] = id
}

func (tc *TestContext) Lookup(alias string) (int64, error) {
	id, ok := tc.ids[alias]
	if !ok {
		return 0, fmt.Errorf("unknown alias %q", alias)
	}
	return id, nil
}

func (tc *TestContext) Request(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(tc.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// AsOwner sends the request with the site owner's bearer token.
func (tc *TestContext) AsOwner(method, path string, body any) error {
	return tc.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + tc.cfg.OwnerToken,
	})
}

// AsAdmin sends the request with the registry admin token.
func (tc *TestContext) AsAdmin(method, path string, body any) error {
	return tc.Request(method, path, body, map[string]string{
		"X-Admin-Token": tc.cfg.AdminToken,
	})
}

func (tc *TestContext) Status() int {
	return tc.lastStatus
}

func (tc *TestContext) Body() []byte {
	return tc.lastBody
}

// GetResponseField reads a top-level field of an object response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal(tc.lastBody, &obj); err != nil {
		return nil, fmt.Errorf("response is not an object: %w (%s)", err, tc.lastBody)
	}
	v, ok := obj[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

// ResponseID reads the numeric id of an object response.
func (tc *TestContext) ResponseID() (int64, error) {
	v, err := tc.GetResponseField("id")
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("id is %T, want number", v)
	}
	return int64(f), nil
}

// ResponseList decodes an array response.
func (tc *TestContext) ResponseList() ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(tc.lastBody, &list); err != nil {
		return nil, fmt.Errorf("response is not an array: %w (%s)", err, tc.lastBody)
	}
	return list, nil
}

// ExpectStatus fails with the response body when the status differs.
func (tc *TestContext) ExpectStatus(want int) error {
	if tc.lastStatus != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, tc.lastStatus, tc.lastBody)
	}
	return nil
}
