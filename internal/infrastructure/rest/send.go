package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Format selects the wire encoding for a dataset upload.
type Format string

// Supported upload formats. FormatAuto picks CSV for homogeneous records
// (every record has the same columns) and JSONL otherwise.
const (
	FormatAuto  Format = ""
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// SendResult is the server's acknowledgement of an upload.
type SendResult struct {
	Status  string `json:"status"`
	Saved   string `json:"saved,omitempty"`
	Message string `json:"message,omitempty"`
}

// SendData uploads a complete dataset to POST /data/<nodeID>.
//
// Homogeneous records travel as text/csv; ragged records travel as a JSON
// payload of the form {"data": [...], "experimentName": "..."}. An explicit
// format overrides auto-detection. The experiment name, when given, is also
// passed as a query parameter so the server can prefix stored filenames.
//
// Parameters:
//   - ctx: Context for timeout/cancellation (the configured client timeout
//     still applies)
//   - records: The dataset; must be non-empty
//   - experimentName: Optional name used in server-side filenames
//   - format: FormatAuto, FormatCSV, or FormatJSONL
//
// Returns:
//   - *SendResult: Parsed server acknowledgement
//   - error: ErrEmptyDataset, ErrRequestFailed, or ErrServerError
func (c *Client) SendData(ctx context.Context, records []Record, experimentName string, format Format) (*SendResult, error) {
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	if format == FormatAuto {
		if isHomogeneous(records) {
			format = FormatCSV
		} else {
			format = FormatJSONL
		}
	}

	params := url.Values{}
	if experimentName != "" {
		params.Set("experimentName", experimentName)
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatCSV:
		csv, convErr := ConvertToCSV(records)
		if convErr != nil {
			return nil, convErr
		}
		body = []byte(csv)
		contentType = "text/csv"
	case FormatJSONL:
		payload := map[string]any{"data": records}
		if experimentName != "" {
			payload["experimentName"] = experimentName
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding payload: %w", ErrRequestFailed, err)
		}
		contentType = "application/json"
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrRequestFailed, format)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataURL(c.nodeID, params), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	return parseSendResponse(resp)
}

// parseSendResponse handles both JSON acknowledgements and the bare
// filename replies produced by older data service deployments.
func parseSendResponse(resp *http.Response) (*SendResult, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: status %d: %s", ErrServerError, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result SendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// Plain-text acknowledgement: treat the body as the saved filename.
		return &SendResult{Status: "success", Saved: strings.TrimSpace(string(raw))}, nil
	}
	return &result, nil
}

// isHomogeneous reports whether every record carries the same set of keys.
// Homogeneous datasets tabulate cleanly and are sent as CSV.
func isHomogeneous(records []Record) bool {
	if len(records) < 2 {
		return true
	}

	first := records[0]
	for _, record := range records[1:] {
		if len(record) != len(first) {
			return false
		}
		for key := range record {
			if _, ok := first[key]; !ok {
				return false
			}
		}
	}
	return true
}
