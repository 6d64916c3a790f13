package materialize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/annoframe/materialize-go/auth"
	"github.com/annoframe/materialize-go/errors"
)

// newTestServer serves the versions endpoint for the example_ds datastack
// plus any extra handlers, so NewClient can resolve the most recent
// version against it.
func newTestServer(t *testing.T, register func(mux *http.ServeMux)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/materialize/api/v2/datastack/example_ds/versions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]uint64{1, 3, 5})
	})
	if register != nil {
		register(mux)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		Datastack:     "example_ds",
		AllowLocal:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	return client
}

func TestNewClient_RequiresServerAddress(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing server address")
	}
}

func TestNewClient_ResolvesMostRecentVersion(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server)

	if got := client.Version(); got != 5 {
		t.Errorf("expected most recent version 5, got %d", got)
	}
	if got := client.Datastack(); got != "example_ds" {
		t.Errorf("expected datastack example_ds, got %s", got)
	}
}

func TestNewClient_NoDatastackSkipsVersionLookup(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		AllowLocal:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requestCount != 0 {
		t.Errorf("expected no requests at construction, got %d", requestCount)
	}
	if client.Version() != 0 {
		t.Errorf("expected zero version, got %d", client.Version())
	}
}

func TestNewClient_VersionLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		Datastack:     "example_ds",
		AllowLocal:    true,
	})
	if err == nil {
		t.Fatal("expected construction to fail when version lookup fails")
	}
}

func TestRefreshVersion(t *testing.T) {
	versions := []uint64{1, 3, 5}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(versions)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		Datastack:     "example_ds",
		AllowLocal:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Version() != 5 {
		t.Fatalf("expected version 5, got %d", client.Version())
	}

	versions = []uint64{1, 3, 5, 8}
	latest, err := client.RefreshVersion(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != 8 || client.Version() != 8 {
		t.Errorf("expected refreshed version 8, got %d (cached %d)", latest, client.Version())
	}
}

func TestTables(t *testing.T) {
	t.Run("uses client defaults", func(t *testing.T) {
		var gotPath string
		server := newTestServer(t, func(mux *http.ServeMux) {
			mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/tables", func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				json.NewEncoder(w).Encode([]string{"cells", "segments"})
			})
		})
		client := newTestClient(t, server)

		tables, err := client.Tables(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tables) != 2 || tables[0] != "cells" {
			t.Errorf("unexpected tables: %v", tables)
		}
		if gotPath == "" {
			t.Error("expected request against default datastack and version path")
		}
	})

	t.Run("per-call overrides do not mutate the client", func(t *testing.T) {
		server := newTestServer(t, func(mux *http.ServeMux) {
			mux.HandleFunc("/materialize/api/v2/datastack/other_ds/version/2/tables", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode([]string{"synapses"})
			})
		})
		client := newTestClient(t, server)

		tables, err := client.Tables(context.Background(), &CallOptions{Datastack: "other_ds", Version: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tables) != 1 || tables[0] != "synapses" {
			t.Errorf("unexpected tables: %v", tables)
		}
		if client.Datastack() != "example_ds" || client.Version() != 5 {
			t.Error("per-call override leaked into client state")
		}
	})

	t.Run("fails fast without a datastack", func(t *testing.T) {
		server := newTestServer(t, nil)
		client, err := NewClient(context.Background(), Config{
			ServerAddress: server.URL,
			AllowLocal:    true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = client.Tables(context.Background(), nil)
		if !errors.Is(err, errors.ErrNoDatastack) {
			t.Errorf("expected ErrNoDatastack, got: %v", err)
		}
	})
}

func TestAnnotationCount(t *testing.T) {
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/table/cells/count", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("42133"))
		})
	})
	client := newTestClient(t, server)

	count, err := client.AnnotationCount(context.Background(), "cells", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42133 {
		t.Errorf("expected count 42133, got %d", count)
	}
}

func TestTableMetadata(t *testing.T) {
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/metadata/table/cells", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"table_name":       "cells",
				"schema_type":      "cell_type_local",
				"description":      "cell bodies",
				"valid":            true,
				"voxel_resolution": []float64{4, 4, 40},
			})
		})
	})
	client := newTestClient(t, server)

	meta, err := client.TableMetadata(context.Background(), "cells", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.TableName != "cells" || meta.SchemaType != "cell_type_local" || !meta.Valid {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(meta.VoxelResolution) != 3 {
		t.Errorf("unexpected voxel resolution: %v", meta.VoxelResolution)
	}
}

func TestAnnotations(t *testing.T) {
	var queries []string
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/table/cells/annotations", func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			json.NewEncoder(w).Encode([]Record{{"id": float64(648518346349538235), "cell_type": "pyramidal"}})
		})
	})
	client := newTestClient(t, server)

	t.Run("joins IDs comma-separated", func(t *testing.T) {
		queries = nil
		records, err := client.Annotations(context.Background(), "cells", []uint64{10, 20, 30}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("unexpected records: %v", records)
		}
		if queries[0] != "annotation_ids=10%2C20%2C30" {
			t.Errorf("unexpected query string: %s", queries[0])
		}
	})

	t.Run("scalar convenience issues identical request", func(t *testing.T) {
		queries = nil
		if _, err := client.Annotations(context.Background(), "cells", []uint64{10}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := client.AnnotationByID(context.Background(), "cells", 10, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(queries) != 2 || queries[0] != queries[1] {
			t.Errorf("expected identical requests, got %v", queries)
		}
	})

	t.Run("empty ID list is rejected locally", func(t *testing.T) {
		_, err := client.Annotations(context.Background(), "cells", nil, nil)
		if !errors.IsInvalidQueryError(err) {
			t.Errorf("expected invalid query error, got: %v", err)
		}
	})
}

func TestAuthHeaderAttached(t *testing.T) {
	var gotAuth string
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/other_ds/versions", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]uint64{1})
		})
	})

	client, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		Auth:          auth.NewTokenProvider("sekrit"),
		AllowLocal:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.Versions(context.Background(), &CallOptions{Datastack: "other_ds"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

func TestAnonymousClientSendsNoAuthHeader(t *testing.T) {
	authSeen := false
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/tables", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				authSeen = true
			}
			json.NewEncoder(w).Encode([]string{"cells"})
		})
	})
	client := newTestClient(t, server)

	if _, err := client.Tables(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authSeen {
		t.Error("anonymous client must not send an Authorization header")
	}
}

func TestTraceBodyLogsResponses(t *testing.T) {
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/tables", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]string{"cells", "segments"})
		})
	})

	core, logs := observer.New(zapcore.DebugLevel)
	client, err := NewClient(context.Background(), Config{
		ServerAddress: server.URL,
		Datastack:     "example_ds",
		Logger:        zap.New(core).Sugar(),
		AllowLocal:    true,
		TraceBody:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tables, err := client.Tables(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 2 {
		t.Errorf("decoding must still work with body tracing on, got %v", tables)
	}

	traced := logs.FilterMessage("materialization response").All()
	if len(traced) == 0 {
		t.Fatal("expected response bodies in the debug log")
	}
	fields := traced[len(traced)-1].ContextMap()
	body, _ := fields["body"].(string)
	if body == "" || !json.Valid([]byte(body)) {
		t.Errorf("expected raw JSON body in the log entry, got %q", body)
	}
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/tables", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "table store on fire", http.StatusBadGateway)
		})
	})
	client := newTestClient(t, server)

	_, err := client.Tables(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for HTTP 502")
	}

	httpErr, ok := AsHTTPError(err)
	if !ok {
		t.Fatalf("expected *HTTPError in chain, got: %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", httpErr.StatusCode)
	}
	if httpErr.Body == "" {
		t.Error("expected response body to be carried")
	}
}

func TestHTTPErrorMarking(t *testing.T) {
	server := newTestServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/table/missing/count", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such table", http.StatusNotFound)
		})
		mux.HandleFunc("/materialize/api/v2/datastack/example_ds/version/5/table/secret/count", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		})
	})
	client := newTestClient(t, server)

	_, err := client.AnnotationCount(context.Background(), "missing", nil)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound mark, got: %v", err)
	}
	if httpErr, ok := AsHTTPError(err); !ok || !httpErr.IsNotFound() {
		t.Errorf("expected 404 HTTPError, got: %v", err)
	}

	_, err = client.AnnotationCount(context.Background(), "secret", nil)
	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized mark, got: %v", err)
	}
	if httpErr, ok := AsHTTPError(err); !ok || !httpErr.IsAuthError() {
		t.Errorf("expected auth HTTPError, got: %v", err)
	}
}
