package lom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

// newTestClient points a client at ts without the digest handshake; the auth
// transport has its own tests.
func newTestClient(ts *httptest.Server, timeout time.Duration) *Client {
	host := strings.TrimPrefix(ts.URL, "http://")
	return NewClient(host, "admin", "secret", timeout, testLogger())
}

func TestReadValuesJSONArray(t *testing.T) {
	var gotQuery url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, `[{"id":"297","name":"HeatPump.State","value":"5"},{"id":253,"name":"Input.THeatSupply","value":21.5}]`)
	}))
	defer ts.Close()

	c := newTestClient(ts, time.Second)
	values, err := c.ReadValues(context.Background(), []string{"297", "253"})
	if err != nil {
		t.Fatalf("ReadValues() error = %v", err)
	}

	want := map[string]string{"297": "5", "253": "21.5"}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("values = %v, want %v", values, want)
	}
	if got := gotQuery.Get("ids"); got != "297;253" {
		t.Errorf("ids query = %q, want %q", got, "297;253")
	}
}

func TestReadValuesEmptyIDs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued for an empty ID set")
	}))
	defer ts.Close()

	c := newTestClient(ts, time.Second)
	values, err := c.ReadValues(context.Background(), nil)
	if err != nil {
		t.Fatalf("ReadValues() error = %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}

func TestReadValuesFirmwareQuirks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			"missing array brackets",
			`{"id":"297","value":"5"},{"id":"253","value":"21.5"}`,
			map[string]string{"297": "5", "253": "21.5"},
		},
		{
			"object map with nested values",
			`{"297":{"name":"HeatPump.State","value":"5"},"253":{"value":21.5}}`,
			map[string]string{"297": "5", "253": "21.5"},
		},
		{
			"wrapped item array",
			`{"values":[{"id":"297","name":"HeatPump.State","value":"5"},{"id":"253","value":21.5}]}`,
			map[string]string{"297": "5", "253": "21.5"},
		},
		{
			"object map with scalars",
			`{"297":"5","253":21.5}`,
			map[string]string{"297": "5", "253": "21.5"},
		},
		{
			"legacy html table",
			`<html><body><table><tr><td>297</td><td>HeatPump.State</td><td>5</td></tr><tr><td>253</td><td>21.5</td></tr></table></body></html>`,
			map[string]string{"297": "5", "253": "21.5"},
		},
		{
			"legacy html pairs",
			`<html><body>297=5;253=21.5</body></html>`,
			map[string]string{"297": "5", "253": "21.5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			c := newTestClient(ts, time.Second)
			values, err := c.ReadValues(context.Background(), []string{"297", "253"})
			if err != nil {
				t.Fatalf("ReadValues() error = %v", err)
			}
			if !reflect.DeepEqual(values, tt.want) {
				t.Errorf("values = %v, want %v", values, tt.want)
			}
		})
	}
}

func TestReadValuesErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		headers map[string]string
		want    error
	}{
		{"unauthorized", http.StatusUnauthorized, "", nil, ErrAuthRejected},
		{"forbidden", http.StatusForbidden, "", nil, ErrAuthRejected},
		{"not found", http.StatusNotFound, "", nil, ErrNotFound},
		{"server error", http.StatusInternalServerError, "", nil, ErrServer},
		{"teapot", http.StatusTeapot, "", nil, ErrServer},
		{"empty body", http.StatusOK, "", nil, ErrMalformed},
		{"broken json", http.StatusOK, `[{"id":`, nil, ErrMalformed},
		{"array without values", http.StatusOK, `[{"name":"x"}]`, nil, ErrMalformed},
		{"html error page", http.StatusOK, `<html><head><title>401 Unauthorized</title></head></html>`, nil, ErrAuthRejected},
		{"html not found page", http.StatusOK, `<html><body><h1>Not Found</h1></body></html>`, nil, ErrNotFound},
		{"html server error page", http.StatusOK, `<html><head><title>Internal Error</title></head></html>`, nil, ErrServer},
		{"html without values", http.StatusOK, `<html><body><p>hello</p></body></html>`, nil, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			c := newTestClient(ts, time.Second)
			_, err := c.ReadValues(context.Background(), []string{"297"})
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadValues() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadValuesTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := newTestClient(ts, 50*time.Millisecond)
	_, err := c.ReadValues(context.Background(), []string{"297"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ReadValues() error = %v, want ErrTimeout", err)
	}
}

func TestReadValuesUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := newTestClient(ts, time.Second)
	_, err := c.ReadValues(context.Background(), []string{"297"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("ReadValues() error = %v, want ErrUnreachable", err)
	}
}

func TestWriteValue(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		io.WriteString(w, "OK")
	}))
	defer ts.Close()

	c := newTestClient(ts, time.Second)
	if err := c.WriteValue(context.Background(), "301", "45"); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}

	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1", requests)
	}
	if gotPath != "/cgi-bin/write_values.cgi" {
		t.Errorf("path = %q, want /cgi-bin/write_values.cgi", gotPath)
	}
	if gotQuery.Get("itemno") != "301" || gotQuery.Get("itemval") != "45" {
		t.Errorf("query = %v, want itemno=301 itemval=45", gotQuery)
	}
}

func TestWriteValueServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(ts, time.Second)
	err := c.WriteValue(context.Background(), "301", "45")
	if !errors.Is(err, ErrServer) {
		t.Errorf("WriteValue() error = %v, want ErrServer", err)
	}
}
