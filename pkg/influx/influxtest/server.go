// Package influxtest provides an in-process fake of the store's query API.
package influxtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/vjranagit/dashboard/pkg/fluxcsv"
	"github.com/vjranagit/dashboard/pkg/types"
)

var (
	bucketRe   = regexp.MustCompile(`from\(bucket: "((?:[^"\\]|\\.)*)"\)`)
	selectorRe = regexp.MustCompile(`r\["_field"\] == "((?:[^"\\]|\\.)*)"`)
)

// Request is what the fake saw for one query.
type Request struct {
	Org           string
	Authorization string
	Accept        string
	ContentType   string
	Flux          string
}

// Server answers POST /api/v2/query from an in-memory record table.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	orgs     map[string]string // org -> token
	buckets  map[string][]types.Record
	requests []Request
	status   int
	body     string
	raw      *string
}

// NewServer starts a fake store.
func NewServer() *Server {
	s := &Server{
		orgs:    make(map[string]string),
		buckets: make(map[string][]types.Record),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddOrg accepts token for org.
func (s *Server) AddOrg(org, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org] = token
}

// SetBucket replaces the records of bucket.
func (s *Server) SetBucket(bucket string, records []types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = append([]types.Record(nil), records...)
}

// FailWith makes every query answer status with body. Status 0 restores
// normal behaviour.
func (s *Server) FailWith(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

// RespondRaw makes every query answer 200 with body verbatim.
func (s *Server) RespondRaw(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = &body
}

// Requests returns the queries received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/api/v2/query" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	body, _ := io.ReadAll(r.Body)
	req := Request{
		Org:           r.URL.Query().Get("org"),
		Authorization: r.Header.Get("Authorization"),
		Accept:        r.Header.Get("Accept"),
		ContentType:   r.Header.Get("Content-Type"),
		Flux:          string(body),
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	status, failBody, raw := s.status, s.body, s.raw
	token, known := s.orgs[req.Org]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, failBody, status)
		return
	}
	if !known || req.Authorization != "Token "+token {
		http.Error(w, `{"code":"unauthorized","message":"unauthorized access"}`, http.StatusUnauthorized)
		return
	}

	var out io.Writer = w
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		out = zw
	}

	if raw != nil {
		io.WriteString(out, *raw)
		return
	}
	fluxcsv.Write(out, s.match(req.Flux))
}

// match returns the records of the queried bucket whose selector is named
// in the query's field filter. Ranges, limits and reducers are not evaluated.
func (s *Server) match(flux string) []types.Record {
	m := bucketRe.FindStringSubmatch(flux)
	if m == nil {
		return nil
	}
	wanted := make(map[string]bool)
	for _, sm := range selectorRe.FindAllStringSubmatch(flux, -1) {
		wanted[sm[1]] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Record
	for _, r := range s.buckets[m[1]] {
		if wanted[r.Selector] {
			out = append(out, r)
		}
	}
	return out
}
