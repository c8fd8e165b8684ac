package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/api/middleware"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/usecase"
)

type PostHandlers struct {
	createPostUC     *usecase.CreatePost
	getPostUC        *usecase.GetPost
	listPostsUC      *usecase.ListPosts
	deletePostUC     *usecase.DeletePost
	getPropagationUC *usecase.GetPropagation
}

func NewPostHandlers(
	createPostUC *usecase.CreatePost,
	getPostUC *usecase.GetPost,
	listPostsUC *usecase.ListPosts,
	deletePostUC *usecase.DeletePost,
	getPropagationUC *usecase.GetPropagation,
) *PostHandlers {
	return &PostHandlers{
		createPostUC:     createPostUC,
		getPostUC:        getPostUC,
		listPostsUC:      listPostsUC,
		deletePostUC:     deletePostUC,
		getPropagationUC: getPropagationUC,
	}
}

func (h *PostHandlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string   `json:"content"`
		MediaIDs []string `json:"mediaIds"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.Validation("body", "is not valid JSON"))
		return
	}

	p, err := h.createPostUC.Execute(r.Context(), usecase.CreatePostParams{
		UserID:   middleware.UserID(r.Context()),
		Content:  req.Content,
		MediaIDs: req.MediaIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *PostHandlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.listPostsUC.Execute(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *PostHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.getPostUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *PostHandlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deletePostUC.Execute(r.Context(), id, middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted", "id": id})
}

func (h *PostHandlers) GetPropagation(w http.ResponseWriter, r *http.Request) {
	view, err := h.getPropagationUC.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	noCache(w)
	writeJSON(w, http.StatusOK, view)
}

type SearchHandlers struct {
	searchPostsUC *usecase.SearchPosts
}

func NewSearchHandlers(searchPostsUC *usecase.SearchPosts) *SearchHandlers {
	return &SearchHandlers{searchPostsUC: searchPostsUC}
}

func (h *SearchHandlers) SearchPosts(w http.ResponseWriter, r *http.Request) {
	hits, err := h.searchPostsUC.Execute(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, hits)
}

type MediaHandlers struct {
	uploadMediaUC *usecase.UploadMedia
	listMediaUC   *usecase.ListMedia
}

func NewMediaHandlers(uploadMediaUC *usecase.UploadMedia, listMediaUC *usecase.ListMedia) *MediaHandlers {
	return &MediaHandlers{uploadMediaUC: uploadMediaUC, listMediaUC: listMediaUC}
}

// multipart framing allowance on top of the file size limit
const uploadOverhead = 1 << 20

func (h *MediaHandlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, usecase.MaxUploadSize+uploadOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Validation("file", "is required and must not exceed 5 MiB"))
		return
	}
	defer file.Close()

	m, err := h.uploadMediaUC.Execute(r.Context(), usecase.UploadMediaParams{
		UserID:      middleware.UserID(r.Context()),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *MediaHandlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := h.listMediaUC.Execute(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}
