package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/relicmart/internal/errs"
	"github.com/koustreak/relicmart/internal/item"
)

const (
	maxJSONBody     = 1 << 20
	multipartMemory = 1 << 20
)

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errs.Newf(errs.ErrKindValidation, "invalid item id %q", raw)
	}
	return id, nil
}

func parseListOptions(r *http.Request) (item.ListOptions, error) {
	q := r.URL.Query()
	opts := item.ListOptions{
		Query:    q.Get("q"),
		Rarities: q["rarity"],
	}

	float := func(name string) (*float64, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errs.Newf(errs.ErrKindValidation, "%s must be a number", name)
		}
		return &f, nil
	}
	integer := func(name string) (int, error) {
		v := q.Get(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errs.Newf(errs.ErrKindValidation, "%s must be an integer", name)
		}
		return n, nil
	}

	var err error
	if opts.MinPrice, err = float("minPrice"); err != nil {
		return opts, err
	}
	if opts.MaxPrice, err = float("maxPrice"); err != nil {
		return opts, err
	}
	if opts.Page, err = integer("page"); err != nil {
		return opts, err
	}
	if opts.PageSize, err = integer("pageSize"); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := s.items.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.items.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func readFields(w http.ResponseWriter, r *http.Request) (item.Fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindValidation, "reading request body", err)
	}
	return item.DecodeFields(body)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.items.Create(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := readFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.items.Update(r.Context(), id, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.items.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadImage stores the multipart "image" part and points the
// item's image field at it. If saving the link fails the object is removed.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, r, errs.New(errs.ErrKindUnavailable, "image storage is not configured"))
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.images.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, errs.Newf(errs.ErrKindValidation, "image exceeds %d bytes", s.images.MaxBytes()))
			return
		}
		writeError(w, r, errs.Wrap(errs.ErrKindValidation, "expected a multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, errs.Wrap(errs.ErrKindValidation, `multipart field "image" is required`, err))
		return
	}
	defer file.Close()

	if _, err := s.items.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	link, err := s.images.Upload(r.Context(), id, file, hdr.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	raw, _ := json.Marshal(link)
	it, err := s.items.Update(r.Context(), id, item.Fields{"image": raw})
	if err != nil {
		s.images.Discard(r.Context(), link)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
