// Package directory talks to the external identity directory. The
// directory only supports counting and paged listing of users plus an
// existence probe; there is no batch-by-id lookup.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/shelfstack/lending-go/internal/domain"
)

const serviceName = "identity directory"

var json = jsoniter.ConfigFastest

// User is one directory record.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// FullName joins first and last name for display purposes.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Directory is the full identity directory surface.
type Directory interface {
	GetUserCount(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, offset int, limit int) ([]User, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// HTTPClient implements Directory against the directory's REST endpoints.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption defines a functional option for configuring an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client, used by tests and
// for transport-level tuning.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = httpClient
	}
}

// NewHTTPClient creates a directory client for the given base URL.
func NewHTTPClient(baseURL string, options ...ClientOption) *HTTPClient {
	client := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// GetUserCount returns the total number of directory users.
func (c *HTTPClient) GetUserCount(ctx context.Context) (int, error) {
	var payload struct {
		Count int `json:"count"`
	}

	if err := c.getJSON(ctx, c.baseURL+"/users/count", &payload); err != nil {
		return 0, err
	}

	return payload.Count, nil
}

// ListUsers returns one page of directory users.
func (c *HTTPClient) ListUsers(ctx context.Context, offset int, limit int) ([]User, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var users []User
	if err := c.getJSON(ctx, c.baseURL+"/users?"+query.Encode(), &users); err != nil {
		return nil, err
	}

	return users, nil
}

// UserExists probes a single user id. A 404 means "does not exist" and is
// not an error.
func (c *HTTPClient) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+userID.String(), nil)
	if err != nil {
		return false, domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return false, domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer func() { _ = response.Body.Close() }()

	switch response.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, domain.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("unexpected status %d", response.StatusCode),
		}
	}
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return domain.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("unexpected status %d", response.StatusCode),
		}
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return domain.ExternalServiceError{Service: serviceName, Err: err}
	}

	return nil
}

var _ Directory = (*HTTPClient)(nil)
