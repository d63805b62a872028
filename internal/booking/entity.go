package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// FixedCancellationFee is charged to the card when a reservation is cancelled.
const FixedCancellationFee = 100.0

const (
	dateTimeLayout      = "2006-01-02T15:04:05"
	dateTimeParseLayout = "2006-01-02T15:04:05.999999999"
	dateTimeShortLayout = "2006-01-02T15:04"
)

// DateTime is a local date-time: the wall clock is kept and the zone is dropped.
// It is encoded as an ISO-8601 local date-time string.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: time.Date(
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC,
	)}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateTimeLayout)) //nolint:wrapcheck
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}

		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date-time: %w", err)
	}

	for _, layout := range []string{dateTimeParseLayout, dateTimeShortLayout} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			d.Time = t

			return nil
		}
	}

	return fmt.Errorf("parse date-time %q: %w", raw, ErrLogic)
}

type RoomType string

const (
	RoomTypeSingle  RoomType = "SINGLE"
	RoomTypeDouble  RoomType = "DOUBLE"
	RoomTypeSuite   RoomType = "SUITE"
	RoomTypeDeluxe  RoomType = "DELUXE"
	RoomTypeUnknown RoomType = "UNKNOWN"
)

func ParseRoomType(s string) RoomType {
	switch RoomType(strings.ToUpper(strings.TrimSpace(s))) {
	case RoomTypeSingle:
		return RoomTypeSingle
	case RoomTypeDouble:
		return RoomTypeDouble
	case RoomTypeSuite:
		return RoomTypeSuite
	case RoomTypeDeluxe:
		return RoomTypeDeluxe
	default:
		return RoomTypeUnknown
	}
}

type Hotel struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	AllRoomIDs    []int   `json:"allRooms"`
	BookedRoomIDs []int   `json:"bookedRooms"`
	Incomes       float64 `json:"incomes"`
}

func (h Hotel) GetID() int { return h.ID }

func (h *Hotel) HasRoom(roomID int) bool {
	return slices.Contains(h.AllRoomIDs, roomID)
}

func (h *Hotel) IsRoomBooked(roomID int) bool {
	return slices.Contains(h.BookedRoomIDs, roomID)
}

func (h *Hotel) markBooked(roomID int) {
	if !h.IsRoomBooked(roomID) {
		h.BookedRoomIDs = append(h.BookedRoomIDs, roomID)
	}
}

func (h *Hotel) markFree(roomID int) {
	h.BookedRoomIDs = slices.DeleteFunc(h.BookedRoomIDs, func(id int) bool { return id == roomID })
}

func (h *Hotel) AddIncome(amount float64) {
	h.Incomes = RoundMoney(h.Incomes + amount)
}

func (h Hotel) Clone() Hotel {
	h.AllRoomIDs = slices.Clone(h.AllRoomIDs)
	h.BookedRoomIDs = slices.Clone(h.BookedRoomIDs)

	return h
}

type Room struct {
	ID               int          `json:"id"`
	HotelID          int          `json:"hotel"`
	Type             RoomType     `json:"type"`
	Amenities        []string     `json:"amenities"`
	MaximumOccupancy int          `json:"maximumOccupancy"`
	PricePerNight    float64      `json:"pricePerNight"`
	TotalPrice       float64      `json:"totalPrice"`
	IsBooked         bool         `json:"isBooked"`
	Availability     Availability `json:"bookingAvailability"`
	InReservations   []int        `json:"inReservations"`
}

// NewRoom creates a room that is available for the whole of open. The total price is the
// per-person price for a full room and does not depend on how long a stay is.
func NewRoom(
	id, hotelID int,
	roomType RoomType,
	amenities []string,
	maximumOccupancy int,
	pricePerNight float64,
	open Window,
) Room {
	return Room{
		ID:               id,
		HotelID:          hotelID,
		Type:             roomType,
		Amenities:        slices.Clone(amenities),
		MaximumOccupancy: maximumOccupancy,
		PricePerNight:    pricePerNight,
		TotalPrice:       RoundMoney(pricePerNight * float64(maximumOccupancy)),
		Availability:     NewAvailability(open),
		InReservations:   []int{},
	}
}

func (r Room) GetID() int { return r.ID }

func (r Room) Clone() Room {
	r.Amenities = slices.Clone(r.Amenities)
	r.InReservations = slices.Clone(r.InReservations)
	r.Availability = r.Availability.Clone()

	return r
}

type Reservation struct {
	ID              int             `json:"id"`
	FromDate        DateTime        `json:"fromDate"`
	ToDate          DateTime        `json:"toDate"`
	Rooms           map[int]float64 `json:"rooms"`
	BookedBy        int             `json:"bookedBy"`
	CancellationFee float64         `json:"cancellationFees"`
	TotalPrice      float64         `json:"totalPrice"`
	Cancelled       bool            `json:"isCancelled"`
}

func (r Reservation) GetID() int { return r.ID }

func (r Reservation) Window() Window {
	return Window{Start: r.FromDate, End: r.ToDate}
}

func (r Reservation) Nights() int {
	return Nights(r.FromDate.Time, r.ToDate.Time)
}

// CalculateTotalPrice sums the per-night price of every room over the stay and adds the
// reservation's cancellation fee once it is cancelled.
func (r Reservation) CalculateTotalPrice() float64 {
	nights := float64(r.Nights())

	var total float64
	for _, price := range r.Rooms {
		total += price * nights
	}

	if r.Cancelled {
		total += r.CancellationFee
	}

	return RoundMoney(total)
}

func (r Reservation) Clone() Reservation {
	rooms := make(map[int]float64, len(r.Rooms))
	for id, price := range r.Rooms {
		rooms[id] = price
	}

	r.Rooms = rooms

	return r
}

type CardRef struct {
	ID      int     `json:"id"`
	Balance float64 `json:"balance"`
}

type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"password"`
	Reservations map[int]float64 `json:"reservations"`
	DebitCard    CardRef         `json:"debitCard"`
}

func (u User) GetID() int { return u.ID }

func (u *User) HasReservation(id int) bool {
	_, ok := u.Reservations[id]

	return ok
}

func (u User) Clone() User {
	reservations := make(map[int]float64, len(u.Reservations))
	for id, price := range u.Reservations {
		reservations[id] = price
	}

	u.Reservations = reservations

	return u
}

type DebitCard struct {
	ID             int      `json:"id"`
	IBAN           string   `json:"iban"`
	CreationDate   DateTime `json:"creationDate"`
	ExpirationDate DateTime `json:"expirationDate"`
	Balance        float64  `json:"balance"`
	OwnerID        int      `json:"owner"`
}

func (c DebitCard) GetID() int { return c.ID }

// Nights counts calendar days between the dates of from and to.
func Nights(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	return int(toDay.Sub(fromDay).Hours() / 24) //nolint:gomnd
}

func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100 //nolint:gomnd
}
