package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// filter is a set of case-insensitive equality constraints.
type filter map[string]string

// parseFilter keeps the non-empty query values for the allowed keys.
func parseFilter(r *http.Request, keys ...string) filter {
	f := filter{}
	q := r.URL.Query()
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			f[k] = v
		}
	}
	return f
}

func (f filter) match(key, value string) bool {
	want, ok := f[key]
	return !ok || strings.EqualFold(want, value)
}

func (s *Server) navigation(ctx context.Context) (crawler.Navigation, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	nav, err := s.store.LoadNavigation(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		return crawler.Navigation{}, nil
	}
	return nav, err
}

func (s *Server) parts(ctx context.Context) ([]crawler.Part, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	parts, err := s.store.LoadSnapshot(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		return nil, nil
	}
	return parts, err
}

func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, what string, err error) {
	s.logger.Error("store read failed",
		zap.String("request_id", requestID(r.Context())),
		zap.String("collection", what),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func (s *Server) listBrands(w http.ResponseWriter, r *http.Request) {
	s.searchBrandsWith(w, r, filter{})
}

func (s *Server) searchBrands(w http.ResponseWriter, r *http.Request) {
	s.searchBrandsWith(w, r, parseFilter(r, "name"))
}

func (s *Server) searchBrandsWith(w http.ResponseWriter, r *http.Request, f filter) {
	nav, err := s.navigation(r.Context())
	if err != nil {
		s.storeFailure(w, r, "brands", err)
		return
	}
	out := []crawler.Brand{}
	for _, b := range nav.Brands {
		if f.match("name", b.Name) {
			out = append(out, b)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.searchCategoriesWith(w, r, filter{})
}

func (s *Server) searchCategories(w http.ResponseWriter, r *http.Request) {
	s.searchCategoriesWith(w, r, parseFilter(r, "brand", "name"))
}

func (s *Server) searchCategoriesWith(w http.ResponseWriter, r *http.Request, f filter) {
	nav, err := s.navigation(r.Context())
	if err != nil {
		s.storeFailure(w, r, "categories", err)
		return
	}
	out := []crawler.Category{}
	for _, c := range nav.Categories {
		if f.match("brand", c.Brand) && f.match("name", c.Name) {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	s.searchModelsWith(w, r, filter{})
}

func (s *Server) searchModels(w http.ResponseWriter, r *http.Request) {
	s.searchModelsWith(w, r, parseFilter(r, "brand", "modelCategory", "name"))
}

func (s *Server) searchModelsWith(w http.ResponseWriter, r *http.Request, f filter) {
	nav, err := s.navigation(r.Context())
	if err != nil {
		s.storeFailure(w, r, "models", err)
		return
	}
	out := []crawler.Model{}
	for _, m := range nav.Models {
		if f.match("brand", m.Brand) && f.match("modelCategory", m.ModelCategory) && f.match("name", m.Name) {
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listParts(w http.ResponseWriter, r *http.Request) {
	s.searchPartsWith(w, r, filter{}, nil)
}

// searchParts handles GET /api/search/parts. inStock must parse as a bool;
// anything else is a 400.
func (s *Server) searchParts(w http.ResponseWriter, r *http.Request) {
	var inStock *bool
	if raw := strings.TrimSpace(r.URL.Query().Get("inStock")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "inStock must be true or false")
			return
		}
		inStock = &v
	}
	s.searchPartsWith(w, r, parseFilter(r, "brand", "modelCategory", "model", "name", "type"), inStock)
}

func (s *Server) searchPartsWith(w http.ResponseWriter, r *http.Request, f filter, inStock *bool) {
	parts, err := s.parts(r.Context())
	if err != nil {
		s.storeFailure(w, r, "parts", err)
		return
	}
	out := []crawler.Part{}
	for _, p := range parts {
		if inStock != nil && p.InStock != *inStock {
			continue
		}
		if f.match("brand", p.Brand) &&
			f.match("modelCategory", p.ModelCategory) &&
			f.match("model", p.Model) &&
			f.match("name", p.Name) &&
			f.match("type", p.Type) {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getChangeset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	cs, err := s.store.LoadChangeset(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no changeset recorded yet")
		return
	}
	if err != nil {
		s.storeFailure(w, r, "changeset", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}
