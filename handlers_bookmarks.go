package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const recentBookmarkCount = 10

// blockedDomains are rejected outright when submitted as bookmark URLs.
var blockedDomains = map[string]struct{}{
	"spam.com":      {},
	"malicious.com": {},
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

type bookmarkInput struct {
	Title       *string `json:"title"`
	URL         *string `json:"url"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

type bookmarkResponse struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (a *App) renderBookmark(b *Bookmark) bookmarkResponse {
	owner := ""
	if u, err := a.store.GetIdentityByID(b.OwnerID); err == nil {
		owner = u.Username
	}
	return bookmarkResponse{
		ID:          b.ID,
		Owner:       owner,
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		URL:         b.URL,
		Description: b.Description,
		IsPublic:    b.IsPublic,
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *App) renderBookmarks(bs []*Bookmark) []bookmarkResponse {
	out := make([]bookmarkResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, a.renderBookmark(b))
	}
	return out
}

// validateBookmark checks title, url and the public/description rule,
// collecting every violation. The cleaned title (HTML tags stripped)
// is what gets stored. excludeID skips the bookmark being updated in
// the URL uniqueness check.
func (a *App) validateBookmark(title, rawURL, description string, isPublic bool, excludeID int64) (string, FieldErrors) {
	fields := FieldErrors{}

	clean := strings.TrimSpace(htmlTagRe.ReplaceAllString(title, ""))
	if len(clean) < 3 {
		fields.add("title", "title must be at least 3 characters excluding HTML tags")
	}

	switch {
	case rawURL == "":
		fields.add("url", "url is required")
	default:
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			fields.add("url", "url must be a valid http or https address")
			break
		}
		if _, blocked := blockedDomains[parsed.Hostname()]; blocked {
			fields.add("url", "this domain is blocked")
			break
		}
		existing, err := a.store.GetBookmarkByURL(rawURL)
		if err == nil && existing.ID != excludeID {
			fields.add("url", "this url is already bookmarked")
		}
	}

	if isPublic && description == "" {
		fields.add("description", "public bookmarks require a description")
	}

	if len(fields) > 0 {
		return "", fields
	}
	return clean, nil
}

func bookmarkID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// HandleListBookmarks returns public bookmarks plus the caller's own,
// newest first.
func (a *App) HandleListBookmarks(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	bs, err := a.store.ListBookmarksVisibleTo(identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmarks(bs))
}

// HandleCreateBookmark creates a bookmark owned by the caller. Any
// caller-supplied owner value is ignored: ownership is bound to the
// authenticated identity unconditionally.
func (a *App) HandleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	var in bookmarkInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	title, rawURL, description := "", "", ""
	isPublic := true
	if in.Title != nil {
		title = *in.Title
	}
	if in.URL != nil {
		rawURL = *in.URL
	}
	if in.Description != nil {
		description = *in.Description
	}
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	clean, fields := a.validateBookmark(title, rawURL, description, isPublic, 0)
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	b, err := a.store.CreateBookmark(identity.ID, clean, rawURL, description, isPublic)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "CONFLICT", "This url is already bookmarked")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create bookmark")
		return
	}
	writeJSON(w, http.StatusCreated, a.renderBookmark(b))
}

func (a *App) HandleGetBookmark(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	id, err := bookmarkID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	b, err := a.store.GetBookmark(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	if err := authorize(identity, b, ActionRetrieve); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this bookmark")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmark(b))
}

// HandleUpdateBookmark handles both PUT (full) and PATCH (partial)
// updates, owner only.
func (a *App) HandleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	id, err := bookmarkID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	b, err := a.store.GetBookmark(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	if err := authorize(identity, b, ActionUpdate); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner may modify this bookmark")
		return
	}

	var in bookmarkInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if r.Method == http.MethodPut {
		fields := FieldErrors{}
		if in.Title == nil {
			fields.add("title", "title is required")
		}
		if in.URL == nil {
			fields.add("url", "url is required")
		}
		if len(fields) > 0 {
			writeFieldErrors(w, fields)
			return
		}
		b.Description = ""
		b.IsPublic = true
	}

	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.URL != nil {
		b.URL = *in.URL
	}
	if in.Description != nil {
		b.Description = *in.Description
	}
	if in.IsPublic != nil {
		b.IsPublic = *in.IsPublic
	}

	clean, fields := a.validateBookmark(b.Title, b.URL, b.Description, b.IsPublic, b.ID)
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	b.Title = clean
	b.UpdatedAt = time.Now().UTC()

	if err := a.store.UpdateBookmark(b); err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "CONFLICT", "This url is already bookmarked")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update bookmark")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmark(b))
}

func (a *App) HandleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	id, err := bookmarkID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	b, err := a.store.GetBookmark(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	if err := authorize(identity, b, ActionDelete); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner may delete this bookmark")
		return
	}
	if err := a.store.DeleteBookmark(id); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete bookmark")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) HandleRecentBookmarks(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	bs, err := a.store.ListBookmarksVisibleTo(identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list bookmarks")
		return
	}
	if len(bs) > recentBookmarkCount {
		bs = bs[:recentBookmarkCount]
	}
	writeJSON(w, http.StatusOK, a.renderBookmarks(bs))
}

func (a *App) HandleMyBookmarks(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	bs, err := a.store.ListBookmarksByOwner(identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmarks(bs))
}

func (a *App) HandlePublicBookmarks(w http.ResponseWriter, r *http.Request) {
	bs, err := a.store.ListPublicBookmarks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmarks(bs))
}

// HandleTogglePublic flips is_public, owner only. A non-owner gets 403,
// not 404: the bookmark stays readable, just not mutable.
func (a *App) HandleTogglePublic(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	id, err := bookmarkID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	b, err := a.store.GetBookmark(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Bookmark not found")
		return
	}
	if err := authorize(identity, b, ActionTogglePublic); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner may change visibility")
		return
	}
	b.IsPublic = !b.IsPublic
	b.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateBookmark(b); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update bookmark")
		return
	}
	writeJSON(w, http.StatusOK, a.renderBookmark(b))
}
