package moodle

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	loginPath  = "login/token.php"
	loginQuery = "service=moodle_mobile_app"
	wsPath     = "webservice/rest/server.php"
	wsQuery    = "moodlewsrestformat=json"
)

// Session is an authenticated connection to a Moodle web-service endpoint.
// It is immutable: the zero value is unusable and every field is only readable.
type Session struct {
	endpoint *url.URL
	token    string
}

// NewSession returns a Session for an already known endpoint & token.
func NewSession(endpoint *url.URL, token string) Session {
	u := *endpoint
	return Session{endpoint: &u, token: token}
}

// Endpoint returns a copy of the web-service endpoint URL.
func (s Session) Endpoint() *url.URL {
	if s.endpoint == nil {
		return nil
	}
	u := *s.endpoint
	return &u
}

func (s Session) Token() string { return s.token }

func (s Session) IsZero() bool { return s.endpoint == nil || s.token == "" }

type loginResponse struct {
	Token *string `json:"token"`
	Error string  `json:"error"`
}

func (c *client) Authenticate(ctx context.Context, baseURL, username, password string) (Session, error) {
	loginURL, err := resolve(baseURL, loginPath, loginQuery)
	if err != nil {
		return Session{}, err
	}
	endpoint, err := resolve(baseURL, wsPath, wsQuery)
	if err != nil {
		return Session{}, err
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var resp loginResponse
	if err := c.postJSON(ctx, "login", loginURL.String(), form, &resp); err != nil {
		return Session{}, err
	}
	// an empty token counts as no token
	if resp.Token == nil || *resp.Token == "" {
		c.logger.Warn("moodle: login rejected", map[string]interface{}{"username": username, "error": resp.Error})
		msg := resp.Error
		if msg == "" {
			msg = "no token returned"
		}
		return Session{}, &AuthenticationError{Message: msg}
	}

	c.logger.Debug("moodle: logged in", map[string]interface{}{"username": username, "endpoint": endpoint.String()})
	return Session{endpoint: endpoint, token: *resp.Token}, nil
}

// resolve appends `path` to the path of baseURL (keeping any sub-directory Moodle is installed in)
// and sets the raw query.
func resolve(baseURL, path, rawQuery string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing base url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid base url %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u, nil
}
