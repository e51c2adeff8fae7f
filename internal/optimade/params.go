package optimade

import (
	"net/url"
	"strconv"
)

// QueryParams are the OPTIMADE entry-listing query parameters accepted on
// federated endpoints. The gateway does not parse `filter`; it is forwarded
// verbatim to every upstream (after id-prefix rewriting, see the query
// package).
type QueryParams struct {
	Filter         string `json:"filter,omitempty" bson:"filter,omitempty"`
	ResponseFormat string `json:"response_format,omitempty" bson:"response_format,omitempty"`
	EmailAddress   string `json:"email_address,omitempty" bson:"email_address,omitempty"`
	ResponseFields string `json:"response_fields,omitempty" bson:"response_fields,omitempty"`
	Sort           string `json:"sort,omitempty" bson:"sort,omitempty"`
	PageLimit      int    `json:"page_limit,omitempty" bson:"page_limit,omitempty"`
	PageOffset     int    `json:"page_offset,omitempty" bson:"page_offset,omitempty"`
	Include        string `json:"include,omitempty" bson:"include,omitempty"`
}

// ParamsFromValues extracts the OPTIMADE query parameters from URL query
// values. Unknown parameters are ignored.
func ParamsFromValues(values url.Values) QueryParams {
	p := QueryParams{
		Filter:         values.Get("filter"),
		ResponseFormat: values.Get("response_format"),
		EmailAddress:   values.Get("email_address"),
		ResponseFields: values.Get("response_fields"),
		Sort:           values.Get("sort"),
		Include:        values.Get("include"),
	}
	if v := values.Get("page_limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.PageLimit = n
		}
	}
	if v := values.Get("page_offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.PageOffset = n
		}
	}
	return p
}

// Values encodes the parameters as URL query values, omitting zero values.
func (p QueryParams) Values() url.Values {
	values := url.Values{}
	set := func(key, val string) {
		if val != "" {
			values.Set(key, val)
		}
	}
	set("filter", p.Filter)
	set("response_format", p.ResponseFormat)
	set("email_address", p.EmailAddress)
	set("response_fields", p.ResponseFields)
	set("sort", p.Sort)
	set("include", p.Include)
	if p.PageLimit > 0 {
		values.Set("page_limit", strconv.Itoa(p.PageLimit))
	}
	if p.PageOffset > 0 {
		values.Set("page_offset", strconv.Itoa(p.PageOffset))
	}
	return values
}

// Encode returns the URL-encoded query string for the parameters.
func (p QueryParams) Encode() string {
	return p.Values().Encode()
}

// WithFilter returns a copy of the parameters with `filter` replaced.
func (p QueryParams) WithFilter(filter string) QueryParams {
	p.Filter = filter
	return p
}
