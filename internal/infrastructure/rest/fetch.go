package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// FetchQuery selects which stored dataset to retrieve.
//
// The zero value fetches this client's own data in JSONL form. Latest takes
// precedence over ExperimentName; when both are unset the server decides
// what to return (typically an index of stored experiments).
type FetchQuery struct {
	// NodeID overrides whose data to fetch. Empty means this client's node.
	NodeID string

	// ExperimentName selects a specific stored experiment.
	ExperimentName string

	// Format requests "csv" or "jsonl" when fetching by experiment name.
	Format Format

	// Latest fetches the most recently stored dataset.
	Latest bool
}

// FetchResult holds a retrieved dataset in whichever shape the server
// returned it. Exactly one of CSV and Data is populated for dataset
// responses; Raw always holds the full response body.
type FetchResult struct {
	// CSV is the raw CSV text, when the server returned tabular data.
	CSV string

	// Data is the JSON-encoded records, when the server returned JSONL data.
	Data json.RawMessage

	// Raw is the complete decoded response object.
	Raw json.RawMessage
}

// FetchData retrieves stored experiment data from GET /data/<nodeID>.
//
// Master nodes use this to aggregate results after a distributed run;
// ordinary nodes rarely call it.
//
// Returns:
//   - *FetchResult: The dataset in server-chosen shape
//   - error: ErrRequestFailed or ErrServerError
func (c *Client) FetchData(ctx context.Context, query FetchQuery) (*FetchResult, error) {
	nodeID := query.NodeID
	if nodeID == "" {
		nodeID = c.nodeID
	}

	params := url.Values{}
	switch {
	case query.Latest:
		params.Set("latest", "true")
	case query.ExperimentName != "":
		params.Set("experimentName", query.ExperimentName)
		format := query.Format
		if format == FormatAuto {
			format = FormatJSONL
		}
		params.Set("format", string(format))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL(nodeID, params), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, err
	}

	result := &FetchResult{Raw: raw}

	// The server wraps datasets in an envelope: {"csv": "..."} for tabular
	// responses, {"data": [...]} for JSONL. Anything else is left in Raw.
	var envelope struct {
		CSV  *string         `json:"csv"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.CSV != nil {
			result.CSV = *envelope.CSV
		}
		if len(envelope.Data) > 0 {
			result.Data = envelope.Data
		}
	}

	return result, nil
}
