package materialize

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/annoframe/materialize-go/endpoints"
	"github.com/annoframe/materialize-go/errors"
)

// FilterSet maps table name -> column name -> filter value(s).
// For in/out filters the value is a set of allowed (or excluded) entries;
// for equality filters it is a single scalar.
type FilterSet map[string]map[string]any

// BoundingBox is an axis-aligned spatial bound: [min xyz, max xyz]
type BoundingBox [2][3]float64

// SpatialFilterSet maps table name -> spatial column -> bounding box
type SpatialFilterSet map[string]map[string]BoundingBox

// QuerySpec describes one query against materialized tables.
//
// Exactly one table dispatches to the simple-query endpoint; more than
// one table dispatches to the join-query endpoint, in which case JoinOn
// must name the join column of each table, positionally.
//
// The three filter kinds are independent and combinable. Empty Datastack
// or zero Version fall back to the client defaults for this call only.
type QuerySpec struct {
	Tables []string
	JoinOn []string // join column per table, required when len(Tables) > 1

	FilterIn      FilterSet        // column value must be in the given set
	FilterOut     FilterSet        // column value must not be in the given set
	FilterEqual   FilterSet        // column value must equal the given scalar
	FilterSpatial SpatialFilterSet // column position must fall inside the box

	SelectColumns []string // restrict response to named columns
	Offset        *int     // result offset for pagination, nil = none

	Datastack string
	Version   uint64
}

// QueryResult is the tabular response of a query: one Record per row
type QueryResult struct {
	Records []Record
}

// Len returns the number of rows
func (r *QueryResult) Len() int {
	return len(r.Records)
}

// Columns returns the sorted union of column names across all rows
func (r *QueryResult) Columns() []string {
	seen := map[string]struct{}{}
	for _, rec := range r.Records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

// Column returns the values of one column in row order; rows missing the
// column yield nil
func (r *QueryResult) Column(name string) []any {
	values := make([]any, len(r.Records))
	for i, rec := range r.Records {
		values[i] = rec[name]
	}
	return values
}

// Query runs a simple or join query depending on how many tables the
// spec names, and returns the decoded rows.
func (c *Client) Query(ctx context.Context, spec QuerySpec) (*QueryResult, error) {
	if len(spec.Tables) == 0 {
		return nil, errors.NewInvalidQueryError("at least one table is required")
	}
	for _, table := range spec.Tables {
		if table == "" {
			return nil, errors.NewInvalidQueryError("table names must not be empty")
		}
	}

	callOpts := &CallOptions{Datastack: spec.Datastack, Version: spec.Version}
	vars, err := c.resolveVars(callOpts)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	var endpoint string

	if len(spec.Tables) == 1 {
		if len(spec.JoinOn) > 0 {
			return nil, errors.NewInvalidQueryError("join columns given for a single-table query")
		}
		endpoint = endpoints.EndpointSimpleQuery
		vars["table_name"] = spec.Tables[0]
	} else {
		if len(spec.JoinOn) != len(spec.Tables) {
			return nil, errors.NewInvalidQueryError(
				"join query needs one join column per table: %d tables, %d join columns",
				len(spec.Tables), len(spec.JoinOn))
		}
		endpoint = endpoints.EndpointJoinQuery
		// Wire shape: two parallel lists, table names then join columns
		body["tables"] = [][]string{spec.Tables, spec.JoinOn}
	}

	// Each filter kind serializes under its own body key so they combine
	// instead of overwriting each other.
	if spec.FilterIn != nil {
		body["filter_in_dict"] = spec.FilterIn
	}
	if spec.FilterOut != nil {
		body["filter_out_dict"] = spec.FilterOut
	}
	if spec.FilterEqual != nil {
		body["filter_equal_dict"] = spec.FilterEqual
	}
	if spec.FilterSpatial != nil {
		body["filter_spatial_dict"] = spec.FilterSpatial
	}
	if spec.SelectColumns != nil {
		body["select_columns"] = spec.SelectColumns
	}

	var params url.Values
	if spec.Offset != nil {
		params = url.Values{}
		params.Set("offset", strconv.Itoa(*spec.Offset))
	}

	u, err := c.buildURL(endpoint, vars, params)
	if err != nil {
		return nil, err
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := c.doJSON(ctx, http.MethodPost, u, payload, &records); err != nil {
		return nil, err
	}
	return &QueryResult{Records: records}, nil
}
