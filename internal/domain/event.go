package domain

import (
	"time"

	"github.com/google/uuid"
)

// SelectionEvent is a confirmed selection as written to the event stream.
type SelectionEvent struct {
	ID         string    `json:"id"`
	PickerID   string    `json:"picker_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Address    string    `json:"address"`
	Source     Source    `json:"source"`
	SelectedAt time.Time `json:"selected_at"`
}

// NewSelectionEvent stamps sel with a fresh event ID and the package clock.
func NewSelectionEvent(pickerID string, sel Selection, source Source) SelectionEvent {
	return SelectionEvent{
		ID:         uuid.NewString(),
		PickerID:   pickerID,
		Lat:        sel.Lat,
		Lng:        sel.Lng,
		Address:    sel.Address,
		Source:     source,
		SelectedAt: clock.Now().UTC(),
	}
}

// Selection returns the selection carried by the event.
func (e SelectionEvent) Selection() Selection {
	return Selection{Lat: e.Lat, Lng: e.Lng, Address: e.Address}
}
