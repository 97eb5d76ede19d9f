package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 10 * time.Second

	// AccessTokenCookie carries the admin session issued by the login endpoint.
	AccessTokenCookie = "users_access_token"

	loginPath   = "/api/v1/auth/login"
	profilePath = "/api/v1/admin/users/{id}"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Profile is the subset of the user record needed to address a notification.
type Profile struct {
	Login     string `json:"login"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DisplayName joins first and last name, falling back to the login.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return strings.TrimSpace(p.Login)
	}
	return name
}

// Client talks to the identity service for admin login and user profiles.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, client)
}

func NewClientWithResty(baseURL string, client *resty.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("identity service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid identity service url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(trimmed)

	return &Client{http: client}, nil
}

// Login exchanges admin credentials for an access token.
func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	response, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(loginRequest{Login: login, Password: password}).
		Post(loginPath)
	if err != nil {
		return "", requestError("login", err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", statusError("login", statusCode, response.String(), ErrUnauthorized)
	}

	for _, cookie := range response.Cookies() {
		if cookie.Name == AccessTokenCookie && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	var body loginResponse
	if err := json.Unmarshal(response.Body(), &body); err == nil && body.AccessToken != "" {
		return body.AccessToken, nil
	}

	return "", &StatusError{
		Operation:  "login",
		StatusCode: statusCode,
		Message:    "response carried no access token",
	}
}

// GetProfile fetches the user profile for userID with an admin token.
func (c *Client) GetProfile(ctx context.Context, userID, token string) (Profile, error) {
	response, err := c.http.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: AccessTokenCookie, Value: token}).
		SetAuthToken(token).
		SetPathParam("id", userID).
		Get(profilePath)
	if err != nil {
		return Profile{}, requestError("profile", err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		var cause error
		switch {
		case statusCode == http.StatusUnauthorized:
			cause = ErrUnauthorized
		case statusCode == http.StatusNotFound:
			cause = ErrProfileNotFound
		case statusCode < http.StatusInternalServerError:
			cause = ErrProfileRejected
		}
		return Profile{}, statusError("profile", statusCode, response.String(), cause)
	}

	var profile Profile
	if err := json.Unmarshal(response.Body(), &profile); err != nil {
		return Profile{}, &StatusError{
			Operation:  "profile",
			StatusCode: statusCode,
			Message:    "malformed profile body",
			Transient:  true,
			Cause:      err,
		}
	}

	return profile, nil
}

func requestError(operation string, err error) error {
	return &StatusError{
		Operation: operation,
		Message:   "request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

// statusError marks 429 and 5xx responses as transient; cause is nil for those.
func statusError(operation string, statusCode int, body string, cause error) error {
	transient := statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
	if transient {
		cause = nil
	}
	return &StatusError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(body),
		Transient:  transient,
		Cause:      cause,
	}
}
