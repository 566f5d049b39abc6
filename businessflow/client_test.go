package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/algosec/algosec-go/domain"
)

// newTestClient starts a TLS test server and returns a client pointed at
// it. The login endpoint is always served.
func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *int32) {
	t.Helper()

	var logins int32
	mux := http.NewServeMux()
	mux.HandleFunc("/BusinessFlow/rest/v1/login", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&logins, 1)
		w.WriteHeader(http.StatusOK)
	})
	if handler != nil {
		mux.HandleFunc("/", handler)
	}

	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)

	httpClient := server.Client()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	httpClient.Jar = jar

	host := strings.TrimPrefix(server.URL, "https://")
	return NewClient(host, "admin", "secret", WithHTTPClient(httpClient)), &logins
}

func TestLoginHappensOnce(t *testing.T) {
	client, logins := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"revisionID": 7})
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.GetApplicationRevisionIDByName(ctx, "app1"); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(logins); got != 1 {
		t.Errorf("login performed %d times, want 1", got)
	}
}

func TestLoginFailure(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.password = "wrong"

	_, err := client.GetApplicationRevisionIDByName(context.Background(), "app1")
	if !errors.Is(err, domain.ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}

	// Login failures stick to the client.
	_, err = client.GetApplicationFlows(context.Background(), 1)
	if !errors.Is(err, domain.ErrLoginFailed) {
		t.Fatalf("expected cached ErrLoginFailed, got %v", err)
	}
}

func TestGetApplicationRevisionIDByName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/BusinessFlow/rest/v1/applications/name/payments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"revisionID": 413, "name": "payments"})
	})

	revisionID, err := client.GetApplicationRevisionIDByName(context.Background(), "payments")
	if err != nil {
		t.Fatal(err)
	}
	if revisionID != 413 {
		t.Errorf("revisionID = %d, want 413", revisionID)
	}
}

func TestGetNetworkServiceByNameEscapesName(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		wantInURI   string
	}{
		{"slash becomes %2F", "TCP/80", "TCP%2F80"},
		{"space becomes %20", "web service", "web%20service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.RequestURI, tt.wantInURI) {
					t.Errorf("service name not escaped as %s in %s", tt.wantInURI, r.RequestURI)
				}
				json.NewEncoder(w).Encode(domain.NetworkService{Name: tt.serviceName, Services: []string{"tcp/80"}})
			})

			service, err := client.GetNetworkServiceByName(context.Background(), tt.serviceName)
			if err != nil {
				t.Fatal(err)
			}
			if service.Name != tt.serviceName {
				t.Errorf("Name = %q, want %q", service.Name, tt.serviceName)
			}
		})
	}
}

func TestSearchNetworkObjects(t *testing.T) {
	t.Run("returns matches", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("type"); got != "CONTAINED" {
				t.Errorf("search type = %q, want CONTAINED", got)
			}
			if got := r.URL.Query().Get("address"); got != "192.168.1.1" {
				t.Errorf("address = %q, want 192.168.1.1", got)
			}
			json.NewEncoder(w).Encode([]domain.NetworkObject{{ObjectID: "5", Name: "lan"}})
		})

		objects, err := client.SearchNetworkObjects(context.Background(), "192.168.1.1", domain.SearchContained)
		if err != nil {
			t.Fatal(err)
		}
		if len(objects) != 1 || objects[0].ObjectID != "5" {
			t.Errorf("objects = %+v", objects)
		}
	})

	t.Run("tolerates non-list response", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"messages": []string{"no objects found"}})
		})

		objects, err := client.SearchNetworkObjects(context.Background(), "192.168.1.1", domain.SearchExact)
		if err != nil {
			t.Fatal(err)
		}
		if objects != nil {
			t.Errorf("objects = %+v, want nil", objects)
		}
	})
}

func TestGetNetworkObjectByName(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(domain.NetworkObject{ObjectID: "9", Name: "web-servers"})
		})
		object, err := client.GetNetworkObjectByName(context.Background(), "web-servers")
		if err != nil {
			t.Fatal(err)
		}
		if object.ObjectID != "9" {
			t.Errorf("ObjectID = %q, want 9", object.ObjectID)
		}
	})

	t.Run("one-element list", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]domain.NetworkObject{{ObjectID: "9", Name: "web-servers"}})
		})
		object, err := client.GetNetworkObjectByName(context.Background(), "web-servers")
		if err != nil {
			t.Fatal(err)
		}
		if object.ObjectID != "9" {
			t.Errorf("ObjectID = %q, want 9", object.ObjectID)
		}
	})

	t.Run("multi-element list fails", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]domain.NetworkObject{{ObjectID: "9"}, {ObjectID: "10"}})
		})
		if _, err := client.GetNetworkObjectByName(context.Background(), "web-servers"); err == nil {
			t.Fatal("expected an error for an ambiguous response")
		}
	})
}

func TestGetApplicationFlowsFiltersSharedFlows(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"flowID": 1, "name": "app-flow", "flowType": "APPLICATION_FLOW"},
			{"flowID": 2, "name": "shared-flow", "flowType": "SHARED_FLOW"}
		]`)
	})

	flows, err := client.GetApplicationFlows(context.Background(), 413)
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 1 || flows[0].Name != "app-flow" {
		t.Errorf("flows = %+v, want only the application flow", flows)
	}
}

func TestGetFlowByNameNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	_, err := client.GetFlowByName(context.Background(), 413, "missing")
	if !errors.Is(err, domain.ErrFlowSearchEmpty) {
		t.Fatalf("expected ErrFlowSearchEmpty, got %v", err)
	}
}

func TestIsFlowContainedInAppRequiresResolution(t *testing.T) {
	client, _ := newTestClient(t, nil)
	requested := domain.NewRequestedFlow("flow1", []string{"192.168.1.1"}, []string{"10.0.0.1"}, nil, nil, []string{"TCP/80"}, "")

	_, err := client.IsFlowContainedInApp(context.Background(), 413, requested)
	if !errors.Is(err, domain.ErrUnresolvedFlow) {
		t.Fatalf("expected ErrUnresolvedFlow, got %v", err)
	}
}

func TestCreateApplicationFlowRetriesMissingServices(t *testing.T) {
	var flowPosts, servicePosts int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/flows/new"):
			var definitions []domain.NewFlowDefinition
			if err := json.NewDecoder(r.Body).Decode(&definitions); err != nil || len(definitions) != 1 {
				t.Errorf("flow creation payload must be a one-element list: %v", err)
			}
			if atomic.AddInt32(&flowPosts, 1) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `["Service object named TCP/8080 does not exist", "Service object named UDP/514 does not exist"]`)
				return
			}
			fmt.Fprint(w, `[{"flowID": 99, "name": "flow1", "flowType": "APPLICATION_FLOW"}]`)
		case strings.HasSuffix(r.URL.Path, "/network_services/new"):
			atomic.AddInt32(&servicePosts, 1)
			var payload struct {
				Name    string           `json:"name"`
				Content []ServiceContent `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Error(err)
			}
			if len(payload.Content) != 1 || payload.Content[0].Protocol == "" {
				t.Errorf("service payload = %+v", payload)
			}
			json.NewEncoder(w).Encode(domain.NetworkService{Name: payload.Name})
		case strings.Contains(r.URL.Path, "/network_objects/find"):
			fmt.Fprint(w, `[{"objectID": "1", "name": "192.168.1.1"}]`)
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	requested := domain.NewRequestedFlow("flow1", []string{"192.168.1.1"}, []string{"192.168.1.1"}, nil, nil, []string{"TCP/8080", "UDP/514"}, "")
	flow, err := client.CreateApplicationFlow(context.Background(), 413, requested)
	if err != nil {
		t.Fatal(err)
	}
	if flow.FlowID.String() != "99" {
		t.Errorf("FlowID = %q, want 99", flow.FlowID)
	}
	if got := atomic.LoadInt32(&flowPosts); got != 2 {
		t.Errorf("flow creation attempted %d times, want 2", got)
	}
	if got := atomic.LoadInt32(&servicePosts); got != 2 {
		t.Errorf("created %d services, want 2", got)
	}
}

func TestCreateApplicationFlowDoesNotRetryOtherErrors(t *testing.T) {
	var flowPosts int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/flows/new"):
			atomic.AddInt32(&flowPosts, 1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `["Flow name already exists"]`)
		case strings.Contains(r.URL.Path, "/network_objects/find"):
			fmt.Fprint(w, `[{"objectID": "1", "name": "192.168.1.1"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	requested := domain.NewRequestedFlow("flow1", []string{"192.168.1.1"}, []string{"192.168.1.1"}, nil, nil, []string{"TCP/80"}, "")
	_, err := client.CreateApplicationFlow(context.Background(), 413, requested)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if got := atomic.LoadInt32(&flowPosts); got != 1 {
		t.Errorf("flow creation attempted %d times, want 1", got)
	}
}

func TestCreateMissingNetworkObjects(t *testing.T) {
	var created []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/network_objects/find"):
			address := r.URL.Query().Get("address")
			if address == "10.0.0.1" {
				// Already defined on the server.
				fmt.Fprint(w, `[{"objectID": "1", "name": "10.0.0.1"}]`)
				return
			}
			fmt.Fprint(w, `[]`)
		case strings.HasSuffix(r.URL.Path, "/network_objects/new"):
			var payload struct {
				Type    string `json:"type"`
				Name    string `json:"name"`
				Content string `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Error(err)
			}
			if payload.Type != string(domain.ObjectTypeHost) {
				t.Errorf("object type = %q, want Host", payload.Type)
			}
			created = append(created, payload.Name)
			json.NewEncoder(w).Encode(domain.NetworkObject{ObjectID: "77", Name: payload.Name})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	objects, err := client.CreateMissingNetworkObjects(context.Background(), []string{"10.0.0.1", "192.168.1.1", "web-servers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 {
		t.Fatalf("created objects = %+v, want one", objects)
	}
	if len(created) != 1 || created[0] != "192.168.1.1" {
		t.Errorf("created = %v, want [192.168.1.1]", created)
	}
}

func TestResolveFlow(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/network_objects/find"):
			address := r.URL.Query().Get("address")
			switch address {
			case "192.168.1.1":
				fmt.Fprint(w, `[{"objectID": "10", "name": "lan"}, {"objectID": "11", "name": "host-1"}]`)
			case "10.0.0.8":
				fmt.Fprint(w, `[{"objectID": "20", "name": "dmz"}]`)
			default:
				fmt.Fprint(w, `[]`)
			}
		case strings.Contains(r.URL.Path, "/network_objects/name/db-servers"):
			json.NewEncoder(w).Encode(domain.NetworkObject{ObjectID: "30", Name: "db-servers", IPAddresses: []string{"10.0.0.8"}})
		case strings.Contains(r.URL.Path, "/network_services/service_name/"):
			json.NewEncoder(w).Encode(domain.NetworkService{Name: "HTTPS", Services: []string{"tcp/443"}})
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	requested := domain.NewRequestedFlow("flow1", []string{"192.168.1.1"}, []string{"db-servers"}, nil, nil, []string{"tcp/80", "HTTPS"}, "")
	if err := client.ResolveFlow(context.Background(), requested); err != nil {
		t.Fatal(err)
	}

	if !requested.Resolved() {
		t.Fatal("flow should report itself resolved")
	}
	if ids := requested.SourceContainment["192.168.1.1"]; !ids["10"] || !ids["11"] {
		t.Errorf("source containment = %v", ids)
	}
	// The named destination resolves through its IP addresses.
	if ids := requested.DestinationContainment["10.0.0.8"]; !ids["20"] {
		t.Errorf("destination containment = %v", requested.DestinationContainment)
	}

	wantHTTP, _ := domain.NewLiteralService("TCP/80")
	wantHTTPS, _ := domain.NewLiteralService("TCP/443")
	if !requested.AggregatedServices[wantHTTP] || !requested.AggregatedServices[wantHTTPS] {
		t.Errorf("aggregated services = %v", requested.AggregatedServices)
	}
	if len(requested.AggregatedServices) != 2 {
		t.Errorf("aggregated services = %v, want two literals", requested.AggregatedServices)
	}
}
