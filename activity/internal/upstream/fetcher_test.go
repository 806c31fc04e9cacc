package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	winStart = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	winEnd   = time.Date(2024, 3, 14, 23, 59, 59, 999999000, time.UTC)
)

func TestFetchAll_FollowsContinuation(t *testing.T) {
	var srv *httptest.Server
	var calls int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		switch n {
		case 1:
			assert.Equal(t, "'2024-03-14T00:00:00.000Z'", r.URL.Query().Get("startDateTime"))
			assert.Equal(t, "'2024-03-14T23:59:59.999Z'", r.URL.Query().Get("endDateTime"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"activityEventEntities": []map[string]any{{"Id": "a"}, {"Id": "b"}},
				"lastResultSet":         false,
				"continuationUri":       srv.URL + "/next?continuationToken=xyz",
			})
		case 2:
			assert.Equal(t, "/next", r.URL.Path)
			assert.Empty(t, r.URL.Query().Get("startDateTime"))
			assert.Equal(t, "xyz", r.URL.Query().Get("continuationToken"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"activityEventEntities": []map[string]any{{"Id": "c", "RecordType": 20}},
				"lastResultSet":         true,
				"continuationUri":       srv.URL + "/never",
			})
		default:
			t.Errorf("unexpected request %d", n)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/admin/activityevents", time.Second, nil)
	records, failed := f.FetchAll(context.Background(), winStart, winEnd, "tok")

	assert.Empty(t, failed)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[2]["Id"])
	assert.Equal(t, json.Number("20"), records[2]["RecordType"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchAll_StopsOnEmptyContinuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"activityEventEntities":[{"Id":"a"}],"lastResultSet":false}`))
	}))
	defer srv.Close()

	records, failed := NewFetcher(srv.URL, time.Second, nil).FetchAll(context.Background(), winStart, winEnd, "tok")
	assert.Empty(t, failed)
	assert.Len(t, records, 1)
}

func TestFetchAll_FailureKeepsCollectedRecords(t *testing.T) {
	var srv *httptest.Server
	var calls int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = fmt.Fprintf(w, `{"activityEventEntities":[{"Id":"a"}],"lastResultSet":false,"continuationUri":%q}`, srv.URL+"/page2")
			return
		}
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	records, failed := NewFetcher(srv.URL, time.Second, nil).FetchAll(context.Background(), winStart, winEnd, "tok")

	require.Len(t, records, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, srv.URL+"/page2", failed[0].URL)
	assert.Contains(t, failed[0].Error, "429")
	assert.Contains(t, failed[0].Error, "throttled")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "paging must stop after a failure")
}

func TestFetchAll_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	records, failed := NewFetcher(srv.URL, time.Second, nil).FetchAll(context.Background(), winStart, winEnd, "tok")
	assert.Empty(t, records)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "decode response")
}

func TestFetchAll_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, failed := NewFetcher(url, time.Second, nil).FetchAll(context.Background(), winStart, winEnd, "tok")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].URL, url)
}

func TestRequestError(t *testing.T) {
	err := &RequestError{URL: "http://x", StatusCode: 500, Err: fmt.Errorf("boom")}
	assert.Equal(t, "GET http://x: status 500: boom", err.Error())
	assert.EqualError(t, err.Unwrap(), "boom")
}
