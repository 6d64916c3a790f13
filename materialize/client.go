// Package materialize is a client for the materialization engine of an
// annotation-framework deployment. The service serves frozen snapshots
// ("materialization versions") of annotation tables scoped by datastack;
// this client builds the REST requests, attaches authentication, and
// decodes the JSON responses.
package materialize

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/annoframe/materialize-go/auth"
	"github.com/annoframe/materialize-go/endpoints"
	"github.com/annoframe/materialize-go/errors"
	"github.com/annoframe/materialize-go/internal/httpclient"
	"github.com/annoframe/materialize-go/internal/util"
)

// DefaultTimeout is the per-request HTTP timeout when Config.Timeout is zero
const DefaultTimeout = 120 * time.Second

// Config holds client configuration. Only ServerAddress is required;
// calls that need a datastack or version fail fast if neither the call
// options nor the config supply one.
type Config struct {
	ServerAddress string               // e.g. https://materialize.example.com
	Datastack     string               // default datastack for all calls
	APIVersion    endpoints.APIVersion // zero = latest
	Auth          auth.Provider        // nil = anonymous access
	Logger        *zap.SugaredLogger   // nil = nop logger
	Timeout       time.Duration        // per-request timeout, zero = DefaultTimeout
	AllowLocal    bool                 // permit localhost/private addresses (dev servers, tests)
	TraceBody     bool                 // log full response bodies at debug level (very verbose)
}

// Client queries a materialization service. It is immutable after
// construction except for the cached most-recent version, which is
// guarded and refreshed only through RefreshVersion.
type Client struct {
	serverAddress string
	datastack     string
	registry      *endpoints.Registry
	authProvider  auth.Provider
	httpClient    *httpclient.SaferClient
	logger        *zap.SugaredLogger
	traceBody     bool

	mu      sync.RWMutex
	version uint64 // most recent materialization version for the default datastack
}

// NewClient creates a client and, when a default datastack is configured,
// resolves its most recent materialization version in one round trip.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if strings.TrimSpace(config.ServerAddress) == "" {
		return nil, errors.WithHint(
			errors.New("server address is required"),
			"set server.address in the config file or pass Config.ServerAddress")
	}

	apiVersion := config.APIVersion
	if apiVersion == 0 {
		apiVersion = endpoints.Latest
	}
	registry, err := endpoints.ForVersion(apiVersion)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		serverAddress: strings.TrimRight(config.ServerAddress, "/"),
		datastack:     config.Datastack,
		registry:      registry,
		authProvider:  config.Auth,
		httpClient: httpclient.New(timeout, httpclient.Options{
			BlockPrivateIP: util.Ptr(!config.AllowLocal),
		}),
		logger:    logger,
		traceBody: config.TraceBody,
	}

	if c.datastack != "" {
		if _, err := c.RefreshVersion(ctx); err != nil {
			return nil, errors.Wrapf(err, "failed to resolve most recent version for datastack %q", c.datastack)
		}
	}

	return c, nil
}

// Datastack returns the configured default datastack name
func (c *Client) Datastack() string {
	return c.datastack
}

// APIVersion returns the API version resolved at construction
func (c *Client) APIVersion() endpoints.APIVersion {
	return c.registry.Version()
}

// Version returns the cached most recent materialization version for the
// default datastack, or zero when no default datastack is configured.
func (c *Client) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// RefreshVersion re-queries the service for the most recent
// materialization version of the default datastack and updates the cache.
func (c *Client) RefreshVersion(ctx context.Context) (uint64, error) {
	versions, err := c.Versions(ctx, nil)
	if err != nil {
		return 0, err
	}

	var latest uint64
	for _, v := range versions {
		if v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, errors.Wrapf(errors.ErrNoVersion, "datastack %q has no materialized versions", c.datastack)
	}

	c.mu.Lock()
	c.version = latest
	c.mu.Unlock()
	return latest, nil
}

// CallOptions overrides the client defaults for a single call. A nil
// options value, empty Datastack or zero Version fall back to the client
// configuration; overrides never mutate the client.
type CallOptions struct {
	Datastack string
	Version   uint64
}

// Record is one annotation row as returned by the service
type Record = map[string]any

// Versions lists the materialization versions available for a datastack
func (c *Client) Versions(ctx context.Context, opts *CallOptions) ([]uint64, error) {
	datastack, err := c.resolveDatastack(opts)
	if err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoints.EndpointVersions, map[string]string{
		"datastack_name": datastack,
	}, nil)
	if err != nil {
		return nil, err
	}

	var versions []uint64
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Tables lists the table names materialized for a datastack version
func (c *Client) Tables(ctx context.Context, opts *CallOptions) ([]string, error) {
	vars, err := c.resolveVars(opts)
	if err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoints.EndpointTables, vars, nil)
	if err != nil {
		return nil, err
	}

	var tables []string
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// AnnotationCount returns the number of annotations in a table
func (c *Client) AnnotationCount(ctx context.Context, table string, opts *CallOptions) (int64, error) {
	vars, err := c.resolveVars(opts)
	if err != nil {
		return 0, err
	}
	vars["table_name"] = table

	u, err := c.buildURL(endpoints.EndpointTableCount, vars, nil)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// TableMetadata describes a materialized annotation table
type TableMetadata struct {
	TableName              string    `json:"table_name"`
	SchemaType             string    `json:"schema_type"`
	Description            string    `json:"description"`
	Valid                  bool      `json:"valid"`
	Created                string    `json:"created"`
	UserID                 string    `json:"user_id"`
	FlatSegmentationSource string    `json:"flat_segmentation_source"`
	VoxelResolution        []float64 `json:"voxel_resolution"`
}

// TableMetadata fetches metadata about a table. Metadata is not scoped to
// a materialization version.
func (c *Client) TableMetadata(ctx context.Context, table string, opts *CallOptions) (*TableMetadata, error) {
	datastack, err := c.resolveDatastack(opts)
	if err != nil {
		return nil, err
	}

	u, err := c.buildURL(endpoints.EndpointTableInfo, map[string]string{
		"datastack_name": datastack,
		"table_name":     table,
	}, nil)
	if err != nil {
		return nil, err
	}

	var meta TableMetadata
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Annotations retrieves annotations by ID. IDs are sent as one
// comma-separated query parameter.
func (c *Client) Annotations(ctx context.Context, table string, ids []uint64, opts *CallOptions) ([]Record, error) {
	if len(ids) == 0 {
		return nil, errors.NewInvalidQueryError("at least one annotation ID is required")
	}

	vars, err := c.resolveVars(opts)
	if err != nil {
		return nil, err
	}
	vars["table_name"] = table

	joined := make([]string, len(ids))
	for i, id := range ids {
		joined[i] = strconv.FormatUint(id, 10)
	}
	params := url.Values{}
	params.Set("annotation_ids", strings.Join(joined, ","))

	u, err := c.buildURL(endpoints.EndpointAnnotations, vars, params)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AnnotationByID retrieves a single annotation. It issues exactly the
// same request as Annotations with a one-element slice.
func (c *Client) AnnotationByID(ctx context.Context, table string, id uint64, opts *CallOptions) (Record, error) {
	records, err := c.Annotations(ctx, table, []uint64{id}, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "annotation %d not in table %q", id, table)
	}
	return records[0], nil
}

// resolveDatastack picks the datastack for a call: option override first,
// then the client default, otherwise a configuration error
func (c *Client) resolveDatastack(opts *CallOptions) (string, error) {
	if opts != nil && opts.Datastack != "" {
		return opts.Datastack, nil
	}
	if c.datastack != "" {
		return c.datastack, nil
	}
	return "", errors.WithHint(errors.WithStack(errors.ErrNoDatastack),
		"pass CallOptions.Datastack or set Datastack in the client Config")
}

// resolveVersion picks the materialization version for a call: option
// override first, then the cached most recent version
func (c *Client) resolveVersion(opts *CallOptions) (uint64, error) {
	if opts != nil && opts.Version != 0 {
		return opts.Version, nil
	}
	if v := c.Version(); v != 0 {
		return v, nil
	}
	return 0, errors.WithHint(errors.WithStack(errors.ErrNoVersion),
		"pass CallOptions.Version or configure a default datastack so the most recent version can be resolved")
}

// resolveVars builds the datastack/version template parameters for a call
func (c *Client) resolveVars(opts *CallOptions) (map[string]string, error) {
	datastack, err := c.resolveDatastack(opts)
	if err != nil {
		return nil, err
	}
	version, err := c.resolveVersion(opts)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"datastack_name": datastack,
		"version":        strconv.FormatUint(version, 10),
	}, nil
}

// buildURL expands a named endpoint and appends query parameters
func (c *Client) buildURL(endpoint string, vars map[string]string, params url.Values) (string, error) {
	u, err := c.registry.URL(endpoint, c.serverAddress, vars)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}

// doJSON performs one HTTP round trip: attach auth, send, check status,
// decode JSON. Non-2xx responses surface as *HTTPError; nothing retries.
func (c *Client) doJSON(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := auth.SetHeader(c.authProvider, req); err != nil {
		return err
	}

	c.logger.Debugw("materialization request",
		"method", method,
		"url", u,
		"body_bytes", len(body),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if c.traceBody {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrapf(err, "failed to read response from %s", u)
		}
		c.logger.Debugw("materialization response",
			"url", u,
			"body", string(raw),
		)
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrapf(err, "failed to decode response from %s", u)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", u)
	}
	return nil
}
