package auth

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// ErrAuthFailed is returned when the login endpoint does not hand out a token.
var ErrAuthFailed = errors.New("authentication failed")

const maxLoggedBody = 2048

// Session is the result of one token exchange. The zero value is unauthenticated.
type Session struct {
	Token         string
	Authorization string
}

func (s Session) Valid() bool { return s.Token != "" }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type Authenticator struct {
	httpClient *http.Client
	log        zerolog.Logger
	sanitizer  *bluemonday.Policy
}

func NewAuthenticator(timeout time.Duration, log zerolog.Logger) *Authenticator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Authenticator{
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "auth").Logger(),
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// browserHeaders mimics the web client of the API; origin and referer follow the endpoint host.
func browserHeaders(host string) http.Header {
	h := http.Header{}
	h.Set("authority", host)
	h.Set("accept", "application/json")
	h.Set("accept-language", "en-US,en;q=0.9")
	h.Set("dnt", "1")
	h.Set("origin", "https://"+host)
	h.Set("referer", "https://"+host+"/")
	h.Set("sec-ch-ua", `"Microsoft Edge";v="111", "Not(A:Brand";v="8", "Chromium";v="111"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("sec-fetch-dest", "empty")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-site", "same-origin")
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return h
}

// Authenticate performs a single password-grant login against {endpoint}/login.
// No retry. On failure the zero Session is returned with ErrAuthFailed.
func (a *Authenticator) Authenticate(ctx context.Context, endpoint, username, password string) (Session, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return Session{}, errors.Newf("invalid endpoint %q", endpoint)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	loginURL := strings.TrimRight(endpoint, "/") + "/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, errors.Wrap(err, "build login request")
	}
	req.Header = browserHeaders(u.Host)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Session{}, errors.Wrap(err, "login request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, errors.Wrap(err, "read login response")
	}

	if resp.StatusCode != http.StatusOK {
		text := a.printable(body)
		a.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", text).
			Msg("Error obtaining access token")
		return Session{}, errors.Mark(errors.Newf("login http %d: %s", resp.StatusCode, text), ErrAuthFailed)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Session{}, errors.Mark(errors.Wrap(err, "decode login response"), ErrAuthFailed)
	}
	if tr.AccessToken == "" {
		a.log.Warn().Str("body", a.printable(body)).Msg("Login response carries no access_token")
		return Session{}, errors.Mark(errors.New("login response without access_token"), ErrAuthFailed)
	}

	a.log.Info().Str("host", u.Host).Msg("Access token obtained")
	return Session{
		Token:         tr.AccessToken,
		Authorization: "Bearer " + tr.AccessToken,
	}, nil
}

// printable strips markup from error pages and caps the length for log lines.
func (a *Authenticator) printable(body []byte) string {
	text := html.UnescapeString(a.sanitizer.Sanitize(string(body)))
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxLoggedBody {
		cut := maxLoggedBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}
