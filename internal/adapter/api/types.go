package api

import (
	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/picker"
	"github.com/couchcryptid/location-picker/internal/session"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type searchInputRequest struct {
	Text string `json:"text"`
}

type searchSelectRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

type clickRequest struct {
	Lat *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

type positionReport struct {
	Lat      float64 `json:"lat" binding:"min=-90,max=90"`
	Lng      float64 `json:"lng" binding:"min=-180,max=180"`
	Accuracy float64 `json:"accuracy" binding:"min=0"`
}

// locateRequest carries what the client device reported. Both fields empty
// means the device gave no answer.
type locateRequest struct {
	Position *positionReport `json:"position"`
	Error    string          `json:"error" binding:"omitempty,oneof=permission_denied position_unavailable timeout unknown unsupported_feature"`
}

type reverseQuery struct {
	Lat *float64 `form:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `form:"lng" binding:"required,min=-180,max=180"`
}

type searchQuery struct {
	Query string `form:"q" binding:"required,min=3"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=20"`
}

type searchState struct {
	Text        string             `json:"text"`
	Pending     bool               `json:"pending"`
	Suggestions []domain.Candidate `json:"suggestions"`
}

type locateError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type locateState struct {
	State     string       `json:"state"`
	Glyph     string       `json:"glyph"`
	LastError *locateError `json:"last_error,omitempty"`
}

type pickerState struct {
	ID             string                `json:"id"`
	Mounted        bool                  `json:"mounted"`
	Selection      domain.Selection      `json:"selection"`
	Source         domain.Source         `json:"source"`
	ConfirmedCount int                   `json:"confirmed_count"`
	View           picker.ViewState      `json:"view"`
	Elements       []string              `json:"elements"`
	Search         searchState           `json:"search"`
	Locate         locateState           `json:"locate"`
	Notifications  []picker.Notification `json:"notifications"`
}

type formEventResponse struct {
	Event picker.FormEvent `json:"event"`
	State pickerState      `json:"state"`
}

type addressResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type mapResponse struct {
	Tiles   picker.TileLayer   `json:"tiles"`
	Center  domain.Coordinates `json:"center"`
	Zoom    int                `json:"zoom"`
	Default domain.Selection   `json:"default"`
}

func stateOf(s *session.Session) pickerState {
	w := s.Widget()
	sel, source, count := s.Confirmed()

	suggestions := w.Search().Suggestions()
	if suggestions == nil {
		suggestions = []domain.Candidate{}
	}
	loc := locateState{
		State: w.Locate().State().String(),
		Glyph: w.Locate().Glyph(),
	}
	if gerr := w.Locate().LastError(); gerr != nil {
		loc.LastError = &locateError{Kind: gerr.Kind.String(), Message: gerr.Message}
	}
	notes := s.Notifications()
	if notes == nil {
		notes = []picker.Notification{}
	}

	return pickerState{
		ID:             s.ID(),
		Mounted:        w.Mounted(),
		Selection:      sel,
		Source:         source,
		ConfirmedCount: count,
		View:           w.Map().View().State(),
		Elements:       w.Map().Elements(),
		Search: searchState{
			Text:        w.Search().Text(),
			Pending:     w.Search().Pending(),
			Suggestions: suggestions,
		},
		Locate:        loc,
		Notifications: notes,
	}
}
