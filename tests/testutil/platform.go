package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Call is one request received by FakeCommerce
type Call struct {
	Method string
	Path   string
}

// FakeCommerce is an in-memory commerce REST API. Collections are keyed by
// path, e.g. "/products" or "/products/authors"; resources get sequential ids.
type FakeCommerce struct {
	Server *httptest.Server

	mu        sync.Mutex
	nextID    int
	resources map[string]map[string]map[string]any
	calls     []Call
	failNext  int
}

// NewFakeCommerce starts the fake and closes it when t ends
func NewFakeCommerce(t *testing.T) *FakeCommerce {
	t.Helper()
	f := &FakeCommerce{nextID: 500, resources: make(map[string]map[string]map[string]any)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL to configure the platform with
func (f *FakeCommerce) URL() string {
	return f.Server.URL
}

// FailNext makes the next n requests answer 503
func (f *FakeCommerce) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Calls returns the requests received so far
func (f *FakeCommerce) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many requests matched method; an empty method counts all
func (f *FakeCommerce) Count(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if method == "" || c.Method == method {
			n++
		}
	}
	return n
}

// Resource returns a stored resource
func (f *FakeCommerce) Resource(collection, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[collection][id]
	return r, ok
}

// Len returns the number of resources in a collection
func (f *FakeCommerce) Len(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources[collection])
}

func (f *FakeCommerce) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: r.Method, Path: r.URL.Path})

	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	collection, id := f.split(r.URL.Path)
	items := f.resources[collection]
	if items == nil {
		items = make(map[string]map[string]any)
		f.resources[collection] = items
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		list := make([]map[string]any, 0)
		for _, item := range items {
			match := true
			for param, values := range r.URL.Query() {
				if param == "per_page" {
					continue
				}
				if v, ok := item[param]; !ok || v != values[0] {
					match = false
				}
			}
			if match {
				list = append(list, item)
			}
		}
		writeJSON(w, http.StatusOK, list)
	case r.Method == http.MethodPost && id == "":
		body := decode(r.Body)
		f.nextID++
		newID := strconv.Itoa(f.nextID)
		body["id"] = f.nextID
		items[newID] = body
		writeJSON(w, http.StatusCreated, body)
	case r.Method == http.MethodPut && id != "":
		if _, ok := items[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": "not_found"})
			return
		}
		body := decode(r.Body)
		body["id"], _ = strconv.Atoi(id)
		items[id] = body
		writeJSON(w, http.StatusOK, body)
	case r.Method == http.MethodDelete && id != "":
		if _, ok := items[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": "not_found"})
			return
		}
		delete(items, id)
		writeJSON(w, http.StatusOK, map[string]any{"id": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// split separates a trailing numeric id from the collection path
func (f *FakeCommerce) split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i > 0 {
		if _, err := strconv.Atoi(path[i+1:]); err == nil {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

func decode(r io.Reader) map[string]any {
	body := make(map[string]any)
	_ = json.NewDecoder(r).Decode(&body)
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
