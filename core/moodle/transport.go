package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// maxErrBodyLen bounds how much of an unexpected body ends up in error messages.
const maxErrBodyLen = 200

type exceptionResponse struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call invokes the web-service function `function` with `params` and decodes the JSON response into
// `out` (which may be nil when the response is of no interest).
// List-valued params must use the `name[]` keys expected by Moodle (eg. "courseids[]").
func (c *client) call(ctx context.Context, sess Session, function string, params url.Values, out interface{}) error {
	if sess.IsZero() {
		return &AuthenticationError{Message: "no active session"}
	}

	form := make(url.Values, len(params)+2)
	for k, v := range params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("wstoken", sess.token)
	form.Set("wsfunction", function)

	c.logger.Debug("moodle: calling "+function, map[string]interface{}{"params": params.Encode()})

	body, err := c.post(ctx, function, sess.endpoint.String(), form)
	if err != nil {
		return err
	}
	if out == nil && len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := checkJSON(function, body); err != nil {
		return err
	}
	if err := checkException(body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(function, body, out)
}

// postJSON posts `form` to `rawURL` and decodes the JSON response into `out`.
func (c *client) postJSON(ctx context.Context, op, rawURL string, form url.Values, out interface{}) error {
	body, err := c.post(ctx, op, rawURL, form)
	if err != nil {
		return err
	}
	if err := checkJSON(op, body); err != nil {
		return err
	}
	return decode(op, body, out)
}

func (c *client) post(ctx context.Context, op, rawURL string, form url.Values) ([]byte, error) {
	resp, err := c.send(ctx, op, rawURL, form)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: errors.Wrap(err, "reading response body")}
	}
	return body, nil
}

// send issues a form-encoded POST and returns the response if its status is 2xx.
// The caller must close the response body.
func (c *client) send(ctx context.Context, op, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrBodyLen))
		_ = resp.Body.Close()
		return nil, &TransportError{Op: op, Err: fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(snippet))}
	}
	return resp, nil
}

func checkJSON(op string, body []byte) error {
	if json.Valid(body) {
		return nil
	}
	snippet := bytes.TrimSpace(body)
	if len(snippet) > maxErrBodyLen {
		snippet = snippet[:maxErrBodyLen]
	}
	return &TransportError{Op: op, Err: fmt.Errorf("response is not JSON: %q", snippet)}
}

// checkException turns a Moodle exception object into an error.
func checkException(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var exc exceptionResponse
	if err := json.Unmarshal(trimmed, &exc); err != nil || exc.Exception == "" {
		return nil //nolint:nilerr // not an exception object
	}
	if exc.ErrorCode == invalidTokenCode {
		return &AuthenticationError{Message: exc.Message}
	}
	return &RemoteError{Exception: exc.Exception, ErrorCode: exc.ErrorCode, Message: exc.Message}
}

// missingField is returned by the wire decoders when a required key is absent or null.
func missingField(name string) error {
	return errors.Errorf("missing field %q", name)
}

func decode(op string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}
