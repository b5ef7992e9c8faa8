package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"term-forge/internal/commit"
	"term-forge/internal/taskmanager"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20

// RegisterHTTPHandlers registers the JSON API under prefix:
//
//	GET  <prefix>/templates?ontology=GO
//	POST <prefix>/generate
//	POST <prefix>/obsolete
//	GET  <prefix>/check?ontology=GO
//	GET  <prefix>/status
//
// Committing requests authenticate with HTTP basic auth; the user name
// becomes the commit identity.
func (s *Service) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	mux.HandleFunc("GET "+prefix+"templates", s.handleTemplates)
	mux.HandleFunc("POST "+prefix+"generate", s.handleGenerate)
	mux.HandleFunc("POST "+prefix+"obsolete", s.handleObsolete)
	mux.HandleFunc("GET "+prefix+"check", s.handleCheck)
	mux.HandleFunc("GET "+prefix+"status", s.handleStatus)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error    string    `json:"error"`
	Problems []Problem `json:"problems,omitempty"`
}

func (s *Service) handleTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := s.AvailableTemplates(r.URL.Query().Get("ontology"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	type field struct {
		Name        string   `json:"name"`
		Required    bool     `json:"required"`
		Cardinality string   `json:"cardinality"`
		Prefixes    []string `json:"prefixes,omitempty"`
		Ontologies  []string `json:"ontologies,omitempty"`
	}
	type template struct {
		Name        string  `json:"name"`
		DisplayName string  `json:"display_name,omitempty"`
		Description string  `json:"description,omitempty"`
		Hint        string  `json:"hint,omitempty"`
		Fields      []field `json:"fields"`
	}
	out := make([]template, 0, len(ts))
	for _, t := range ts {
		tt := template{Name: t.Name, DisplayName: t.DisplayName, Description: t.Description, Hint: t.Hint}
		for _, f := range t.Fields {
			ff := field{Name: f.Name, Required: f.Required, Cardinality: f.Cardinality.String(), Prefixes: f.Prefixes}
			for _, o := range f.Ontologies {
				ff.Ontologies = append(ff.Ontologies, o.String())
			}
			tt.Fields = append(tt.Fields, ff)
		}
		out = append(out, tt)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.Identity, req.Secret = user, pass
	}
	resp, err := s.GenerateTerms(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleObsolete(w http.ResponseWriter, r *http.Request) {
	var req ObsoleteRequest
	if !decode(w, r, &req) {
		return
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.Identity, req.Secret = user, pass
	}
	resp, err := s.ObsoleteTerm(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleCheck(w http.ResponseWriter, r *http.Request) {
	c, err := s.CheckConsistency(r.Context(), r.URL.Query().Get("ontology"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]string)
	for name, st := range s.registry.States() {
		states[name] = st.String()
	}
	writeJSON(w, http.StatusOK, states)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var (
		ie *InputError
		ce *CredentialError
		me *commit.CommitError
	)
	switch {
	case errors.As(err, &ie):
		if errors.Is(err, taskmanager.ErrUnknownOntology) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoTermsGenerated):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCommitBlocked), errors.Is(err, commit.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &me):
		return http.StatusBadGateway
	case errors.Is(err, taskmanager.ErrOntologyFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	body := errorResponse{Error: err.Error()}
	var ie *InputError
	if errors.As(err, &ie) {
		body.Problems = ie.Problems
	}
	writeJSON(w, status, body)
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
