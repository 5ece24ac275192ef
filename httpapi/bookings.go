package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authengine/bookings"
	"github.com/MrEthical07/authengine/middleware"
)

type bookingsResponse struct {
	Bookings []bookings.Booking `json:"bookings"`
}

func caller(r *http.Request) (username, token string) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return "", ""
	}
	return id.Username, id.Token
}

func (a *API) handleListBookings(w http.ResponseWriter, r *http.Request) {
	actor, token := caller(r)
	list, err := a.bookings.List(r.Context(), actor, token, chi.URLParam(r, "owner"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, bookingsResponse{Bookings: list})
}

func (a *API) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, token := caller(r)
	b, err := a.bookings.Get(r.Context(), actor, token, chi.URLParam(r, "owner"), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

func (a *API) handleAddBooking(w http.ResponseWriter, r *http.Request) {
	var in bookings.Booking
	if !decode(w, r, &in) {
		return
	}
	actor, token := caller(r)
	b, err := a.bookings.Add(r.Context(), actor, token, chi.URLParam(r, "owner"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, b)
}

func (a *API) handleEditBooking(w http.ResponseWriter, r *http.Request) {
	var in bookings.Booking
	if !decode(w, r, &in) {
		return
	}
	actor, token := caller(r)
	b, err := a.bookings.Edit(r.Context(), actor, token, chi.URLParam(r, "owner"), chi.URLParam(r, "id"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

func (a *API) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	actor, token := caller(r)
	if err := a.bookings.Delete(r.Context(), actor, token, chi.URLParam(r, "owner"), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w, "Booking deleted.")
}
