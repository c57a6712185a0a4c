package directory_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfstack/lending-go/internal/directory"
	"github.com/shelfstack/lending-go/internal/domain"
)

var (
	aliceID = uuid.MustParse("e1111111-1111-1111-1111-111111111111")
	bobID   = uuid.MustParse("e2222222-2222-2222-2222-222222222222")
)

func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /users/count", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 2}`)
	})

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}

		fmt.Fprintf(w, `[
			{"id": %q, "email": "alice@example.com", "firstName": "Alice", "lastName": "Archer"},
			{"id": %q, "email": "bob@example.com", "firstName": "Bob", "lastName": "Builder"}
		]`, aliceID, bobID)
	})

	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == aliceID.String() {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func Test_HTTPClient_GetUserCount(t *testing.T) {
	server := newDirectoryServer(t)
	client := directory.NewHTTPClient(server.URL)

	count, err := client.GetUserCount(t.Context())

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func Test_HTTPClient_ListUsers(t *testing.T) {
	server := newDirectoryServer(t)
	client := directory.NewHTTPClient(server.URL)

	t.Run("first_page_returns_records", func(t *testing.T) {
		users, err := client.ListUsers(t.Context(), 0, 50)

		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, aliceID, users[0].ID)
		assert.Equal(t, "alice@example.com", users[0].Email)
		assert.Equal(t, "Alice Archer", users[0].FullName())
	})

	t.Run("page_past_the_end_is_empty", func(t *testing.T) {
		users, err := client.ListUsers(t.Context(), 50, 50)

		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func Test_HTTPClient_UserExists(t *testing.T) {
	server := newDirectoryServer(t)
	client := directory.NewHTTPClient(server.URL)

	t.Run("known_user", func(t *testing.T) {
		exists, err := client.UserExists(t.Context(), aliceID)

		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("unknown_user_is_not_an_error", func(t *testing.T) {
		exists, err := client.UserExists(t.Context(), uuid.New())

		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func Test_HTTPClient_ServerErrorsSurfaceAsExternalServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := directory.NewHTTPClient(server.URL)

	_, countErr := client.GetUserCount(t.Context())
	assert.True(t, domain.IsExternalServiceError(countErr))

	_, listErr := client.ListUsers(t.Context(), 0, 50)
	assert.True(t, domain.IsExternalServiceError(listErr))

	_, existsErr := client.UserExists(t.Context(), aliceID)
	assert.True(t, domain.IsExternalServiceError(existsErr))
}
