package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "weakapi/internal/errors"
	"weakapi/internal/model"
	"weakapi/internal/service"
)

// NoteHandler serves the note endpoints. Every route expects an acting
// user on the context.
type NoteHandler struct {
	notes service.NoteService
}

// NewNoteHandler creates a new note handler.
func NewNoteHandler(notes service.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// CreateNoteRequest represents a note creation request.
type CreateNoteRequest struct {
	Title       string `json:"title" validate:"required,max=128"`
	Description string `json:"description" validate:"required,max=512"`
}

// DeleteNoteRequest names the note to delete.
type DeleteNoteRequest struct {
	ID uuid.UUID `json:"id" validate:"required"`
}

// NoteResponse is the list representation of a note.
type NoteResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

func toNoteResponses(notes []model.Note) []NoteResponse {
	out := make([]NoteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteResponse{
			ID:          n.ID,
			Title:       n.Title,
			Description: n.Description,
		})
	}
	return out
}

// List godoc
// @Summary List notes
// @Description Returns the caller's notes, or those of user-id when given.
// @Tags notes
// @Produce json
// @Security BearerAuth
// @Param user-id query string false "Owner id"
// @Success 200 {array} NoteResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /notes [get]
func (h *NoteHandler) List(c echo.Context) error {
	acting, err := ActingUser(c)
	if err != nil {
		return err
	}

	var requested *uuid.UUID
	if raw := c.QueryParam("user-id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.WithMessage(apperrors.ErrValidation, "user-id must be a valid UUID")
		}
		requested = &id
	}

	notes, err := h.notes.List(c.Request().Context(), acting, requested)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toNoteResponses(notes))
}

// View godoc
// @Summary Render a note
// @Tags notes
// @Produce html
// @Security BearerAuth
// @Param note_id path string true "Note id"
// @Success 200 {string} string "HTML page"
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /notes/{note_id} [get]
func (h *NoteHandler) View(c echo.Context) error {
	acting, err := ActingUser(c)
	if err != nil {
		return err
	}

	noteID, err := uuid.Parse(c.Param("note_id"))
	if err != nil {
		return apperrors.WithMessage(apperrors.ErrValidation, "note_id must be a valid UUID")
	}

	page, err := h.notes.View(c.Request().Context(), acting, noteID)
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, page)
}

// Create godoc
// @Summary Create a note
// @Tags notes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateNoteRequest true "Note"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /notes/create [post]
func (h *NoteHandler) Create(c echo.Context) error {
	acting, err := ActingUser(c)
	if err != nil {
		return err
	}

	var req CreateNoteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := h.notes.Create(c.Request().Context(), acting, req.Title, req.Description); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MessageResponse{Msg: "Note created"})
}

// Delete godoc
// @Summary Delete one of the caller's notes
// @Tags notes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DeleteNoteRequest true "Note id"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /notes/delete [delete]
func (h *NoteHandler) Delete(c echo.Context) error {
	acting, err := ActingUser(c)
	if err != nil {
		return err
	}

	var req DeleteNoteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.notes.Delete(c.Request().Context(), acting, req.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Msg: "Note deleted"})
}
