package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idRow struct {
	ID int64 `json:"id"`
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("SelectSendsAuthAndQuery", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/rest/v1/user_meal_plan", r.URL.Path)
			assert.Equal(t, "eq.true", r.URL.Query().Get("is_active"))
			assert.Equal(t, "service_key", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer service_key", r.Header.Get("Authorization"))

			fmt.Fprintln(w, `[{"id": 1}, {"id": 2}]`)
		}))
		defer server.Close()

		client := NewClient(server.URL+"/", "service_key")
		rows, err := SelectAll[idRow](ctx, client, "user_meal_plan", url.Values{"is_active": {"eq.true"}}, 100)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(2), rows[1].ID)
	})

	t.Run("UpdateCountsRows", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"is_active": false}`, string(body))

			fmt.Fprintln(w, `[{"id": 5, "is_active": false}]`)
		}))
		defer server.Close()

		client := NewClient(server.URL, "service_key")
		n, err := client.Update(ctx, "user_meal_plan", url.Values{"id": {"eq.5"}}, map[string]any{"is_active": false})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InsertMinimal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := NewClient(server.URL, "service_key")
		err := client.Insert(ctx, "user_meal_plan_details", []map[string]any{{"meal_item_id": 1}}, nil)
		require.NoError(t, err)
	})

	t.Run("APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, `{"code": "23502", "message": "null value in column \"user_id\"", "details": null, "hint": null}`)
		}))
		defer server.Close()

		client := NewClient(server.URL, "service_key")
		err := client.Insert(ctx, "user_meal_plan", []map[string]any{{}}, nil)
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "23502", apiErr.Code)
	})

	t.Run("NonJSONError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream unavailable")
		}))
		defer server.Close()

		client := NewClient(server.URL, "service_key")
		_, err := SelectAll[idRow](ctx, client, "user_meal_plan", nil, 100)
		assert.EqualError(t, err, "supabase api error: status 502: upstream unavailable")
	})
}

// pagedServer serves ids 1..total honouring the Range header the way PostgREST does.
func pagedServer(t *testing.T, total int, requests *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "items", r.Header.Get("Range-Unit"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		*requests = append(*requests, r.Header.Get("Range"))

		var from, to int
		_, err := fmt.Sscanf(r.Header.Get("Range"), "%d-%d", &from, &to)
		assert.NoError(t, err)
		if to >= total {
			to = total - 1
		}
		if from > to {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", total))
			fmt.Fprint(w, `[]`)
			return
		}

		rows := make([]idRow, 0, to-from+1)
		for i := from; i <= to; i++ {
			rows = append(rows, idRow{ID: int64(i + 1)})
		}
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", from, to, total))
		if to-from+1 < total {
			w.WriteHeader(http.StatusPartialContent)
		}
		json.NewEncoder(w).Encode(rows)
	}))
}

func TestSelectAll(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadsEveryPage", func(t *testing.T) {
		var requests []string
		server := pagedServer(t, 5, &requests)
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 2)
		require.NoError(t, err)
		require.Len(t, rows, 5)
		assert.Equal(t, int64(5), rows[4].ID)
		assert.Equal(t, []string{"0-1", "2-3", "4-5"}, requests)
	})

	t.Run("ExactMultipleOfPageSize", func(t *testing.T) {
		var requests []string
		server := pagedServer(t, 4, &requests)
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 2)
		require.NoError(t, err)
		assert.Len(t, rows, 4)
		assert.Equal(t, []string{"0-1", "2-3"}, requests)
	})

	t.Run("EmptyTable", func(t *testing.T) {
		var requests []string
		server := pagedServer(t, 0, &requests)
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 2)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Len(t, requests, 1)
	})

	t.Run("ServerCapBelowPageSize", func(t *testing.T) {
		// db-max-rows of 2 while the client asks for 10 at a time.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var from, to int
			fmt.Sscanf(r.Header.Get("Range"), "%d-%d", &from, &to)
			end := min(from+1, 2)
			rows := []idRow{}
			for i := from; i <= end; i++ {
				rows = append(rows, idRow{ID: int64(i + 1)})
			}
			w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/3", from, end))
			json.NewEncoder(w).Encode(rows)
		}))
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 10)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("TruncatedResponseFails", func(t *testing.T) {
		// Ignores Range and always returns the first two of three rows.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", "0-1/3")
			fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
		}))
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 1000)
		assert.ErrorIs(t, err, ErrIncompleteResult)
		assert.Nil(t, rows)
	})

	t.Run("RowsMissingBeforeTotalFails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Range"), "0-") {
				w.Header().Set("Content-Range", "0-1/3")
				fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
				return
			}
			w.Header().Set("Content-Range", "*/3")
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		_, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 2)
		assert.ErrorIs(t, err, ErrIncompleteResult)
	})

	t.Run("NoContentRangeStopsAtShortPage", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
				return
			}
			fmt.Fprint(w, `[{"id": 3}]`)
		}))
		defer server.Close()

		rows, err := SelectAll[idRow](ctx, NewClient(server.URL, "key"), "user_meal_plan", nil, 2)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
		assert.Equal(t, 2, calls)
	})
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in      string
		want    contentRange
		ok      bool
		wantErr bool
	}{
		{in: "", ok: false},
		{in: "0-24/100", want: contentRange{start: 0, end: 24, total: 100}, ok: true},
		{in: "*/0", want: contentRange{start: -1, end: -1, total: 0}, ok: true},
		{in: "0-9/*", want: contentRange{start: 0, end: 9, total: -1}, ok: true},
		{in: "items 5-6/7", want: contentRange{start: 5, end: 6, total: 7}, ok: true},
		{in: "0-9", wantErr: true},
		{in: "a-b/3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := parseContentRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
