package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/flatterer/web/internal/convert"
	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

const maxCommitBytes = 1 << 20

func (s *server) pageHandler(router.Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r)
	})
}

// renderPage renders the view for the request path into the shell. Paths
// outside the route table render the not-found view with 404.
func (s *server) renderPage(w http.ResponseWriter, r *http.Request) {
	target := app.NewShellTarget(s.shell, r.URL.Path)
	page, err := s.app.RenderTo(target)
	if err != nil {
		s.logf("render %s: %v", r.URL.Path, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(page.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(target.Bytes())
	}
}

// handleFallback serves static files and renders the not-found page for
// everything else.
func (s *server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if s.serveStatic(w, r) {
			return
		}
		s.renderPage(w, r)
		return
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
}

func (s *server) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	if path := s.staticDescriptor(); path != "" {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, path)
		return
	}
	writeJSON(w, http.StatusOK, s.generatedDescriptor())
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Store().State())
}

func (s *server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var env store.Envelope
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCommitBytes))
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode mutation: %w", err))
		return
	}
	m, err := store.DecodeMutation(env.Type, env.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Store().Commit(m))
}

// handleConvertForm runs a preview conversion for the home page form and
// records the outcome in the store before redirecting home.
func (s *server) handleConvertForm(w http.ResponseWriter, r *http.Request) {
	st := s.app.Store()
	req := convert.Request{OutputFormat: convert.FormatPreview}

	conv, err := s.convert.Convert(w, r, req)
	var (
		ok      = err == nil
		payload []byte
	)
	if err != nil {
		var convErr *convert.Error
		body := map[string]any{"error": err.Error()}
		if errors.As(err, &convErr) {
			body = convErr.Body()
		}
		payload, _ = json.Marshal(body)
		s.logf("form conversion failed: %v", err)
	} else if payload, err = json.Marshal(convert.Preview(conv)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, m := range store.PreviewResult(ok, payload) {
		st.Commit(m)
	}
	s.redirectHome(w, r)
}

func (s *server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.app.Store().Commit(store.SetListItem(r.PostFormValue("item")))
	s.redirectHome(w, r)
}

func (s *server) handleSection(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("section name is required"))
		return
	}
	value, err := strconv.ParseBool(r.PostFormValue("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid section value: %w", err))
		return
	}
	s.app.Store().Commit(store.SetSection{Section: name, Value: value})
	s.redirectHome(w, r)
}

func (s *server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.app.Router().Href(router.HomeRoute), http.StatusSeeOther)
}
