package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavelab/labnode/internal/infrastructure/config"
)

// newTestClient points a client at an httptest server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client, err := New(config.DataServiceConfig{
		Host:    u.Hostname(),
		Port:    port,
		Timeout: 5,
	}, "carriage-01")
	require.NoError(t, err)
	return client
}

func TestNewValidation(t *testing.T) {
	cfg := config.DataServiceConfig{Host: "localhost", Port: 5000, Timeout: 15}

	_, err := New(cfg, "")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Host = ""
	_, err = New(cfg, "carriage-01")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    bool
	}{
		{
			name: "online",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status":"online"}`))
			},
			want: true,
		},
		{
			name: "online mixed case",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status":"Online"}`))
			},
			want: true,
		},
		{
			name: "degraded status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status":"maintenance"}`))
			},
			want: false,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: false,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`not json`))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := newTestClient(t, server)
			assert.Equal(t, tt.want, client.CheckHealth(context.Background()))
		})
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	// Port 1 refuses connections; the probe must degrade to false quickly
	// rather than erroring or hanging.
	client, err := New(config.DataServiceConfig{
		Host:    "127.0.0.1",
		Port:    1,
		Timeout: 2,
	}, "carriage-01")
	require.NoError(t, err)

	start := time.Now()
	healthy := client.CheckHealth(context.Background())
	elapsed := time.Since(start)

	assert.False(t, healthy)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestSendDataCSV(t *testing.T) {
	var (
		gotPath        string
		gotContentType string
		gotQuery       url.Values
		gotBody        string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotQuery = r.URL.Query()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`{"status":"success","saved":"wave_sweep_carriage-01.csv"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	records := []Record{
		{"time": 0.1, "depth_m": 0.42},
		{"time": 0.2, "depth_m": 0.44},
	}
	result, err := client.SendData(context.Background(), records, "wave_sweep", FormatAuto)
	require.NoError(t, err)

	assert.Equal(t, "/data/carriage-01", gotPath)
	assert.Equal(t, "text/csv", gotContentType)
	assert.Equal(t, "wave_sweep", gotQuery.Get("experimentName"))
	assert.Equal(t, "wave_sweep_carriage-01.csv", result.Saved)

	lines := strings.Split(strings.TrimSpace(gotBody), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "depth_m,time", lines[0])
	assert.Equal(t, "0.42,0.1", lines[1])
}

func TestSendDataJSONL(t *testing.T) {
	var (
		gotContentType string
		gotPayload     map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"status":"success","saved":"mixed.jsonl"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	// Ragged records: different key sets force JSONL under auto-detection.
	records := []Record{
		{"time": 0.1, "depth_m": 0.42},
		{"time": 0.2, "event": "wave_peak"},
	}
	result, err := client.SendData(context.Background(), records, "mixed", FormatAuto)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "mixed", gotPayload["experimentName"])
	data, ok := gotPayload["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
	assert.Equal(t, "success", result.Status)
}

func TestSendDataExplicitFormat(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	// Homogeneous records would auto-detect as CSV; force JSONL.
	records := []Record{{"time": 0.1}, {"time": 0.2}}
	_, err := client.SendData(context.Background(), records, "", FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
}

func TestSendDataEmpty(t *testing.T) {
	client, err := New(config.DataServiceConfig{Host: "localhost", Port: 5000, Timeout: 1}, "carriage-01")
	require.NoError(t, err)

	_, err = client.SendData(context.Background(), nil, "", FormatAuto)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestSendDataServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.SendData(context.Background(), []Record{{"a": 1}}, "", FormatAuto)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSendDataPlainTextAck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("stored_0042.csv\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	result, err := client.SendData(context.Background(), []Record{{"a": 1}}, "", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "stored_0042.csv", result.Saved)
}

func TestFetchDataLatest(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"data":[{"time":0.1,"depth_m":0.42}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	result, err := client.FetchData(context.Background(), FetchQuery{Latest: true})
	require.NoError(t, err)

	assert.Equal(t, "true", gotQuery.Get("latest"))
	assert.Empty(t, result.CSV)

	var records []Record
	require.NoError(t, json.Unmarshal(result.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, 0.42, records[0]["depth_m"])
}

func TestFetchDataByExperiment(t *testing.T) {
	var (
		gotPath  string
		gotQuery url.Values
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"csv":"time,depth_m\n0.1,0.42\n"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	result, err := client.FetchData(context.Background(), FetchQuery{
		NodeID:         "carriage-02",
		ExperimentName: "wave_sweep",
		Format:         FormatCSV,
	})
	require.NoError(t, err)

	assert.Equal(t, "/data/carriage-02", gotPath)
	assert.Equal(t, "wave_sweep", gotQuery.Get("experimentName"))
	assert.Equal(t, "csv", gotQuery.Get("format"))
	assert.Equal(t, "time,depth_m\n0.1,0.42\n", result.CSV)
}

func TestFetchDataServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.FetchData(context.Background(), FetchQuery{Latest: true})
	assert.True(t, errors.Is(err, ErrServerError) || errors.Is(err, ErrRequestFailed))
}

func TestConvertToCSV(t *testing.T) {
	records := []Record{
		{"time": 0.1, "depth_m": 0.42, "valid": true},
		{"time": 0.2, "note": "spike"},
	}

	csvText, err := ConvertToCSV(records)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	require.Len(t, lines, 3)

	// Sorted union of all keys, missing values as empty cells.
	assert.Equal(t, "depth_m,note,time,valid", lines[0])
	assert.Equal(t, "0.42,,0.1,true", lines[1])
	assert.Equal(t, ",spike,0.2,", lines[2])
}

func TestConvertToCSVEmpty(t *testing.T) {
	_, err := ConvertToCSV(nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestIsHomogeneous(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    bool
	}{
		{"single record", []Record{{"a": 1}}, true},
		{"matching keys", []Record{{"a": 1, "b": 2}, {"a": 3, "b": 4}}, true},
		{"extra key", []Record{{"a": 1}, {"a": 1, "b": 2}}, false},
		{"disjoint keys", []Record{{"a": 1}, {"b": 2}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isHomogeneous(tt.records))
		})
	}
}
