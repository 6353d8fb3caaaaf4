package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// invalidSessionCode is the error code Salesforce reports for a revoked or
// timed-out access token.
const invalidSessionCode = "INVALID_SESSION_ID"

// Record is the generic field map for a single Salesforce record.
type Record map[string]any

// soqlPage is one page of a SOQL query response.
type soqlPage struct {
	TotalSize      int      `json:"totalSize"`
	Done           bool     `json:"done"`
	NextRecordsURL string   `json:"nextRecordsUrl"`
	Records        []Record `json:"records"`
}

// QueryResult is the accumulated result of a SOQL query across all pages.
type QueryResult struct {
	TotalSize int      `json:"totalSize"`
	Records   []Record `json:"records"`
}

// SearchResult is the envelope of a SOSL search response.
type SearchResult struct {
	SearchRecords []Record `json:"searchRecords"`
}

// errorDetail is one entry of the error array Salesforce returns for failed
// requests.
type errorDetail struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// APIError reports a non-2xx response from the Salesforce API, carrying the
// Salesforce error code where one was supplied.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("salesforce API error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("salesforce API error (status %d): %s", e.StatusCode, e.Message)
}

// newAPIError builds an APIError from a response body, which Salesforce
// usually formats as a JSON array of message/errorCode pairs.
func newAPIError(statusCode int, body []byte) *APIError {
	var details []errorDetail
	if err := json.Unmarshal(body, &details); err == nil && len(details) > 0 {
		var messages []string
		for _, d := range details {
			messages = append(messages, d.Message)
		}
		return &APIError{
			StatusCode: statusCode,
			Code:       details[0].ErrorCode,
			Message:    strings.Join(messages, "; "),
		}
	}
	return &APIError{StatusCode: statusCode, Message: string(body)}
}

// IsInvalidSession reports whether err represents a Salesforce
// INVALID_SESSION_ID response, meaning the access token is no longer
// accepted and the session should be treated as expired.
func IsInvalidSession(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == invalidSessionCode
}
