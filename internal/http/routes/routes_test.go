package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/mikud/internal/jobs"
	"github.com/briangreenhill/mikud/israelpost"
)

// fakeLookuper returns a fixed result and records the last address
type fakeLookuper struct {
	zip  string
	err  error
	last *israelpost.Address
}

func (f *fakeLookuper) Lookup(ctx context.Context, addr *israelpost.Address) (string, error) {
	f.last = addr
	if addr == nil || addr.IsBlank() {
		return "", israelpost.ErrInvalidInput
	}
	return f.zip, f.err
}

// fakeQueue records enqueued tasks
type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "id", Queue: jobs.QueuePrefetch}, nil
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(ServerOptions{Lookup: &fakeLookuper{}})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLookupQuery(t *testing.T) {
	l := &fakeLookuper{zip: "6423907"}
	s := New(ServerOptions{Lookup: l})

	rec := do(t, s, http.MethodGet, "/v1/zipcode?city=%D7%AA%D7%9C%20%D7%90%D7%91%D7%99%D7%91&street=x&house=7&entrance=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp zipcodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "6423907", resp.Zipcode)
	assert.Equal(t, "תל אביב", l.last.City)
	assert.Equal(t, israelpost.FlexString("7"), l.last.HouseNumber)
	assert.Equal(t, israelpost.FlexString("1"), l.last.Entrance)
}

func TestLookupJSON(t *testing.T) {
	l := &fakeLookuper{zip: "3303118"}
	s := New(ServerOptions{Lookup: l})

	rec := do(t, s, http.MethodPost, "/v1/zipcode", `{"city":"חיפה","street":"הנביאים","houseNumber":25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"zipcode":"3303118"}`, rec.Body.String())
	assert.Equal(t, israelpost.FlexString("25"), l.last.HouseNumber)
}

func TestLookupJSON_InvalidInput(t *testing.T) {
	l := &fakeLookuper{zip: "3303118"}
	s := New(ServerOptions{Lookup: l})

	for _, body := range []string{"null", "[1,2]", `"city"`, "{"} {
		rec := do(t, s, http.MethodPost, "/v1/zipcode", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_input", resp.Kind)
	}
	assert.Nil(t, l.last, "lookup must not run for invalid input")
}

func TestLookup_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&israelpost.Error{Kind: israelpost.KindAddressNotFound}, http.StatusNotFound, "address_not_found"},
		{&israelpost.Error{Kind: israelpost.KindTimeout}, http.StatusGatewayTimeout, "timeout"},
		{&israelpost.Error{Kind: israelpost.KindBotProtection}, http.StatusServiceUnavailable, "bot_protection"},
		{&israelpost.Error{Kind: israelpost.KindServiceUnavailable}, http.StatusServiceUnavailable, "service_unavailable"},
		{&israelpost.Error{Kind: israelpost.KindHTTPError, StatusCode: 500, StatusText: "Internal Server Error"}, http.StatusBadGateway, "http_error"},
		{&israelpost.Error{Kind: israelpost.KindUpstreamError, Code: "5"}, http.StatusBadGateway, "upstream_error"},
		{&israelpost.Error{Kind: israelpost.KindMalformedZip}, http.StatusBadGateway, "malformed_zip"},
		{&israelpost.Error{Kind: israelpost.KindUnexpectedFormat}, http.StatusBadGateway, "unexpected_format"},
		{&israelpost.Error{Kind: israelpost.KindNetworkUnavailable}, http.StatusBadGateway, "network_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "unknown"},
	}

	for _, tt := range tests {
		s := New(ServerOptions{Lookup: &fakeLookuper{err: tt.err}})
		rec := do(t, s, http.MethodGet, "/v1/zipcode?city=a&street=b", "")
		assert.Equal(t, tt.status, rec.Code, "kind %s", tt.kind)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tt.kind, resp.Kind)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestLookup_ErrorDetails(t *testing.T) {
	s := New(ServerOptions{Lookup: &fakeLookuper{err: &israelpost.Error{Kind: israelpost.KindUpstreamError, Code: "4711"}}})
	rec := do(t, s, http.MethodGet, "/v1/zipcode?city=a", "")

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "4711", resp.Code)

	s = New(ServerOptions{Lookup: &fakeLookuper{err: &israelpost.Error{Kind: israelpost.KindHTTPError, StatusCode: 429}}})
	rec = do(t, s, http.MethodGet, "/v1/zipcode?city=a", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 429, resp.Status)
}

func TestPrefetch(t *testing.T) {
	q := &fakeQueue{}
	s := New(ServerOptions{Lookup: &fakeLookuper{}, Queue: q})

	rec := do(t, s, http.MethodPost, "/v1/prefetch", `[{"city":"חיפה","street":"הנביאים"},{},{"city":"ירושלים","street":"הרצל","houseNumber":10}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp prefetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.TaskIDs, 2, "blank addresses are skipped")
	require.Len(t, q.tasks, 2)
	assert.Equal(t, jobs.TaskPrefetchZipcode, q.tasks[0].Type())
}

func TestPrefetch_Errors(t *testing.T) {
	s := New(ServerOptions{Lookup: &fakeLookuper{}})
	rec := do(t, s, http.MethodPost, "/v1/prefetch", `[{"city":"חיפה"}]`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no queue configured")

	s = New(ServerOptions{Lookup: &fakeLookuper{}, Queue: &fakeQueue{}})
	rec = do(t, s, http.MethodPost, "/v1/prefetch", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPost, "/v1/prefetch", `{"city":"חיפה"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s = New(ServerOptions{Lookup: &fakeLookuper{}, Queue: &fakeQueue{err: fmt.Errorf("enqueue: %w", errors.New("redis down"))}})
	rec = do(t, s, http.MethodPost, "/v1/prefetch", `[{"city":"חיפה"}]`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPrefetch_AlreadyQueued(t *testing.T) {
	q := &fakeQueue{err: asynq.ErrTaskIDConflict}
	s := New(ServerOptions{Lookup: &fakeLookuper{}, Queue: q})

	addr := israelpost.Address{City: "חיפה", Street: "הנביאים"}
	rec := do(t, s, http.MethodPost, "/v1/prefetch", `[{"city":"חיפה","street":"הנביאים"}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp prefetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{jobs.PrefetchTaskID(addr)}, resp.TaskIDs)
}
