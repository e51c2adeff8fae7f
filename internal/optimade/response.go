package optimade

import (
	"encoding/json"
	"strconv"
)

// Error is a single member of a response's top-level `errors` array. The
// shape follows the OPTIMADE error object, extended with `source` naming the
// upstream database an error originated from when the response is federated.
type Error struct {
	Status int    `json:"status,omitempty" bson:"status,omitempty"`
	Title  string `json:"title,omitempty" bson:"title,omitempty"`
	Detail string `json:"detail,omitempty" bson:"detail,omitempty"`
	Source string `json:"source,omitempty" bson:"source,omitempty"`
	Type   string `json:"type,omitempty" bson:"type,omitempty"`
}

// UnmarshalJSON accepts `status` as a number or a string. JSON:API declares
// error statuses as strings and many upstreams serialize them that way;
// marshalling always emits a number.
func (e *Error) UnmarshalJSON(data []byte) error {
	type plain Error
	aux := struct {
		Status any `json:"status"`
		*plain
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch v := aux.Status.(type) {
	case float64:
		e.Status = int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			e.Status = n
		}
	}
	return nil
}

// MetaQuery echoes the query back to the client, per the OPTIMADE spec.
type MetaQuery struct {
	Representation string `json:"representation" bson:"representation"`
}

// SourceOK and SourceError are the per-source states reported in
// Meta.Sources for a federated response.
const (
	SourceOK    = "ok"
	SourceError = "error"
)

// Meta is the top-level `meta` object of a federated response.
type Meta struct {
	Query             MetaQuery         `json:"query" bson:"query"`
	APIVersion        string            `json:"api_version" bson:"api_version"`
	DataReturned      int64             `json:"data_returned" bson:"data_returned"`
	DataAvailable     int64             `json:"data_available" bson:"data_available"`
	MoreDataAvailable bool              `json:"more_data_available" bson:"more_data_available"`
	Sources           map[string]string `json:"sources,omitempty" bson:"sources,omitempty"`
	Warnings          []Error           `json:"warnings,omitempty" bson:"warnings,omitempty"`
}

// Links is the top-level `links` object. Next is non-nil only when more data
// is available and a follow-up URL could be synthesized.
type Links struct {
	Next *string `json:"next" bson:"next"`
}

// Response is a merged, protocol-compliant OPTIMADE response assembled from
// the outcomes of one federated query.
type Response struct {
	Data   []Entry `json:"data" bson:"data"`
	Errors []Error `json:"errors,omitempty" bson:"errors,omitempty"`
	Meta   Meta    `json:"meta" bson:"meta"`
	Links  Links   `json:"links" bson:"links"`
}

// SingleResponse is a response carrying exactly one entry (or none), used by
// the single-entry endpoint.
type SingleResponse struct {
	Data   Entry   `json:"data" bson:"data"`
	Errors []Error `json:"errors,omitempty" bson:"errors,omitempty"`
	Meta   Meta    `json:"meta" bson:"meta"`
	Links  Links   `json:"links" bson:"links"`
}
