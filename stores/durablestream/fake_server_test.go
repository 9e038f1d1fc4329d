package durablestream_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// fakeServer is an in-memory durable-streams server speaking the JSON mode
// subset the store uses: PUT creates, POST appends, GET reads after an offset.
type fakeServer struct {
	mu      sync.Mutex
	streams map[string][]json.RawMessage
	// failures makes the next n requests answer failStatus
	failures   int
	failStatus int
	requests   int
}

func newFakeServer() (*fakeServer, *httptest.Server) {
	fs := &fakeServer{streams: make(map[string][]json.RawMessage)}
	mux := http.NewServeMux()
	mux.Handle("/v1/stream/", http.StripPrefix("/v1/stream/", fs))
	return fs, httptest.NewServer(mux)
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.requests++
	if fs.failures > 0 {
		fs.failures--
		w.WriteHeader(fs.failStatus)
		return
	}

	path := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		if _, ok := fs.streams[path]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		fs.streams[path] = nil
		w.WriteHeader(http.StatusCreated)

	case http.MethodPost:
		records, ok := fs.streams[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var batch []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, record := range batch {
			record["offset"] = strconv.Itoa(len(records) + 1)
			raw, _ := json.Marshal(record)
			records = append(records, raw)
		}
		fs.streams[path] = records
		w.Header().Set("Stream-Next-Offset", strconv.Itoa(len(records)))
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		records, ok := fs.streams[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		from := 0
		if offset := r.URL.Query().Get("offset"); offset != "" && offset != "-1" {
			n, err := strconv.Atoi(offset)
			if err != nil {
				http.Error(w, "bad offset", http.StatusBadRequest)
				return
			}
			from = n
		}
		end := len(records)
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && from+limit < end {
			end = from + limit
		}
		if from > end {
			from = end
		}

		page := records[from:end]
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Stream-Next-Offset", strconv.Itoa(end))
		w.Header().Set("Stream-Up-To-Date", strconv.FormatBool(end == len(records)))
		parts := make([]string, len(page))
		for i, p := range page {
			parts[i] = string(p)
		}
		w.Write([]byte("[" + strings.Join(parts, ",") + "]"))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fs *fakeServer) failNext(n int) {
	fs.failNextWith(n, http.StatusServiceUnavailable)
}

func (fs *fakeServer) failNextWith(n, status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failures = n
	fs.failStatus = status
}

func (fs *fakeServer) hasStream(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.streams[name]
	return ok
}

func (fs *fakeServer) requestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests
}
