package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClient(url string) *HTTPClient {
	return NewHTTPClient(url,
		WithRateLimit(0, 0),
		WithRetries(2, time.Millisecond),
		WithTimeout(2*time.Second),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestFetchPage_Success(t *testing.T) {
	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("skip"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "true", r.URL.Query().Get("unread_only"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, models.NotificationPage{
			Items: []models.Notification{{
				ID: 3, UserID: "u1", Type: models.TypeAttendance, Title: "Absence recorded",
				Priority: models.PriorityHigh, CreatedAt: created,
			}},
			Total:       31,
			UnreadCount: 4,
		})
	}))
	defer srv.Close()

	c := newTestHTTPClient(srv.URL + "/api")
	c.SetToken("secret")

	page, err := c.FetchPage(context.Background(), 20, 10, true)

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), page.Items[0].ID)
	assert.Equal(t, models.TypeAttendance, page.Items[0].Type)
	assert.True(t, created.Equal(page.Items[0].CreatedAt))
	assert.Equal(t, 31, page.Total)
	assert.Equal(t, 4, page.UnreadCount)
}

func TestFetchPage_EmptyItemsIsNotNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("unread_only"))
		w.Write([]byte(`{"total":0,"unread_count":0}`))
	}))
	defer srv.Close()

	page, err := newTestHTTPClient(srv.URL).FetchPage(context.Background(), 0, 20, false)

	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestFetchUnreadCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/unread-count", r.URL.Path)
		writeJSON(w, http.StatusOK, models.UnreadCountResponse{UnreadCount: 7})
	}))
	defer srv.Close()

	n, err := newTestHTTPClient(srv.URL).FetchUnreadCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   Kind
	}{
		{"Unauthorized", http.StatusUnauthorized, KindAuth},
		{"Forbidden", http.StatusForbidden, KindAuth},
		{"NotFound", http.StatusNotFound, KindValidation},
		{"Unprocessable", http.StatusUnprocessableEntity, KindValidation},
		{"TooManyRequests", http.StatusTooManyRequests, KindServer},
		{"Internal", http.StatusInternalServerError, KindServer},
		{"Unavailable", http.StatusServiceUnavailable, KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, models.ErrorResponse{Error: "nope"})
			}))
			defer srv.Close()

			err := newTestHTTPClient(srv.URL).MarkAsRead(context.Background(), 5)

			require.Error(t, err)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, "mark_read", apiErr.Op)
		})
	}
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, models.NotificationPage{Total: 0})
	}))
	defer srv.Close()

	_, err := newTestHTTPClient(srv.URL).FetchPage(context.Background(), 0, 20, false)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestHTTPClient(srv.URL).FetchPage(context.Background(), 0, 20, false)

	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPage_DoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestHTTPClient(srv.URL).FetchPage(context.Background(), 0, 20, false)

	assert.True(t, IsAuthError(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMutations_AreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestHTTPClient(srv.URL).DeleteNotification(context.Background(), 5)

	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMutations_Endpoints(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newTestHTTPClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, c.MarkAsRead(ctx, 4))
	require.NoError(t, c.MarkAllAsRead(ctx))
	require.NoError(t, c.DeleteNotification(ctx, 9))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /notifications/4/read",
		"POST /notifications/read-all",
		"DELETE /notifications/9",
	}, seen)
}

func TestNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, WithRateLimit(0, 0), WithRetries(0, time.Millisecond))
	_, err := c.FetchUnreadCount(context.Background())

	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsRetryable(err))
}

func TestGarbledBodyIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRateLimit(0, 0), WithRetries(0, time.Millisecond))
	_, err := c.FetchPage(context.Background(), 0, 20, false)

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestCanceledContextStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewHTTPClient(srv.URL, WithRateLimit(0, 0), WithRetries(5, time.Hour))
	go func() {
		for calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := c.FetchUnreadCount(ctx)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}
