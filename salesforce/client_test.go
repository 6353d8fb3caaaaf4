package salesforce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueryPaginates(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RequestURI())
		if got, want := r.Header.Get("Authorization"), "Bearer access-token"; got != want {
			t.Errorf("got auth header %q want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case fmt.Sprintf("/services/data/%s/query", APIVersionNumber):
			if got, want := r.URL.Query().Get("q"), "SELECT Id FROM Account LIMIT 200"; got != want {
				t.Errorf("got q %q want %q", got, want)
			}
			fmt.Fprintf(w, `{
				"totalSize": 3, "done": false,
				"nextRecordsUrl": "/services/data/%s/query/01g-next",
				"records": [{"Id": "001A"}, {"Id": "001B"}]
			}`, APIVersionNumber)
		case fmt.Sprintf("/services/data/%s/query/01g-next", APIVersionNumber):
			fmt.Fprint(w, `{"totalSize": 3, "done": true, "records": [{"Id": "001C"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "access-token", testLogger())
	result, err := client.Query(context.Background(), "SELECT Id FROM Account LIMIT 200")
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(requests), 2; got != want {
		t.Fatalf("got %d requests want %d", got, want)
	}
	want := &QueryResult{
		TotalSize: 3,
		Records: []Record{
			{"Id": "001A"}, {"Id": "001B"}, {"Id": "001C"},
		},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("query result mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Path, fmt.Sprintf("/services/data/%s/search", APIVersionNumber); got != want {
			t.Errorf("got path %q want %q", got, want)
		}
		if got, want := r.URL.Query().Get("q"), "FIND {Acme} IN ALL FIELDS"; got != want {
			t.Errorf("got q %q want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"searchRecords": [{"Id": "001A", "Name": "Acme Ltd"}]}`)
	}))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "access-token", testLogger())
	result, err := client.Search(context.Background(), "FIND {Acme} IN ALL FIELDS")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(result.SearchRecords), 1; got != want {
		t.Fatalf("got %d records want %d", got, want)
	}
	if got, want := result.SearchRecords[0]["Name"], "Acme Ltd"; got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `[{"message": "unexpected token", "errorCode": "MALFORMED_QUERY"}]`)
	}))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "access-token", testLogger())
	_, err := client.Query(context.Background(), "SELECT Id FROM Account LIMIT 1")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if got, want := apiErr.Code, "MALFORMED_QUERY"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
	if got, want := apiErr.StatusCode, http.StatusBadRequest; got != want {
		t.Errorf("got %d want %d", got, want)
	}
	if IsInvalidSession(err) {
		t.Error("MALFORMED_QUERY is not an invalid session")
	}
}

func TestIsInvalidSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `[{"message": "Session expired or invalid", "errorCode": "INVALID_SESSION_ID"}]`)
	}))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "stale-token", testLogger())
	_, err := client.Search(context.Background(), "FIND {x}")
	if !IsInvalidSession(err) {
		t.Errorf("expected invalid session detection, got %v", err)
	}
}
