package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/logger"
)

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
}

type Storage struct {
	Hotels       booking.Repository[booking.Hotel]
	Rooms        booking.Repository[booking.Room]
	Reservations booking.Repository[booking.Reservation]
}

type Manager struct {
	mu       sync.Mutex
	l        *logger.Logger
	storage  Storage
	roomIDs  idGenerator
	validate *validator.Validate
	horizon  time.Duration
	now      func() time.Time
}

// New creates the admin manager. Rooms added through it are open for booking from the
// current day until horizon later.
func New(l *logger.Logger, storage Storage, roomIDs idGenerator, horizon time.Duration) *Manager {
	//nolint:exhaustruct
	return &Manager{
		l:        l,
		storage:  storage,
		roomIDs:  roomIDs,
		validate: validator.New(),
		horizon:  horizon,
		now:      time.Now,
	}
}

type HotelSummary struct {
	ID          int
	Name        string
	Address     string
	RoomsCount  int
	BookedCount int
	Incomes     float64
}

type RoomInput struct {
	HotelID          int      `validate:"gt=0"`
	Type             string   `validate:"required"`
	Amenities        []string `validate:"dive,required"`
	MaximumOccupancy int      `validate:"gte=1,lte=10"`
	PricePerNight    float64  `validate:"gt=0"`
}

func (m *Manager) Hotels(ctx context.Context) ([]HotelSummary, error) {
	hotels, err := m.storage.Hotels.ReadAll(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Store: "hotels", Err: err}
	}

	summaries := make([]HotelSummary, 0, len(hotels))
	for _, h := range hotels {
		summaries = append(summaries, HotelSummary{
			ID:          h.ID,
			Name:        h.Name,
			Address:     h.Address,
			RoomsCount:  len(h.AllRoomIDs),
			BookedCount: len(h.BookedRoomIDs),
			Incomes:     h.Incomes,
		})
	}

	return summaries, nil
}

// Bookings lists every reservation, active or cancelled, that holds a room of the hotel.
func (m *Manager) Bookings(ctx context.Context, hotelID int) ([]booking.Reservation, error) {
	hotel, err := m.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	reservations, err := m.storage.Reservations.ReadAll(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Store: "reservations", Err: err}
	}

	var res []booking.Reservation

	for _, reservation := range reservations {
		for roomID := range reservation.Rooms {
			if hotel.HasRoom(roomID) {
				res = append(res, reservation)

				break
			}
		}
	}

	return res, nil
}

func (m *Manager) TotalIncome(ctx context.Context, hotelID int) (float64, error) {
	hotel, err := m.hotel(ctx, hotelID)
	if err != nil {
		return 0, err
	}

	return hotel.Incomes, nil
}

// CancellationFees is the income of the hotel from cancelled reservations.
func (m *Manager) CancellationFees(ctx context.Context, hotelID int) (float64, error) {
	bookings, err := m.Bookings(ctx, hotelID)
	if err != nil {
		return 0, err
	}

	var cancelled int

	for _, reservation := range bookings {
		if reservation.Cancelled {
			cancelled++
		}
	}

	return booking.RoundMoney(float64(cancelled) * booking.FixedCancellationFee), nil
}

func (m *Manager) HotelRooms(ctx context.Context, hotelID int) ([]booking.Room, error) {
	hotel, err := m.hotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	rooms, err := m.storage.Rooms.ReadAll(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Store: "rooms", Err: err}
	}

	var res []booking.Room

	for _, room := range rooms {
		if hotel.HasRoom(room.ID) {
			res = append(res, room)
		}
	}

	return res, nil
}

func (m *Manager) AddRoom(ctx context.Context, input RoomInput) (*booking.Room, error) {
	if err := m.validateInput(input); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hotel, err := m.hotel(ctx, input.HotelID)
	if err != nil {
		return nil, err
	}

	id, err := m.roomIDs.GetID(ctx)
	if err != nil {
		return nil, booking.ErrNextID
	}

	start := booking.NewDateTime(m.now()).Truncate(24 * time.Hour) //nolint:gomnd

	room := booking.NewRoom(
		id,
		hotel.ID,
		booking.ParseRoomType(input.Type),
		input.Amenities,
		input.MaximumOccupancy,
		input.PricePerNight,
		booking.NewWindow(start, start.Add(m.horizon)),
	)

	if err = m.storage.Rooms.MergeAndSave(ctx, []booking.Room{room}); err != nil {
		return nil, &booking.PersistenceError{Store: "rooms", Err: err}
	}

	hotel.AllRoomIDs = append(hotel.AllRoomIDs, room.ID)

	if err = m.storage.Hotels.MergeAndSave(ctx, []booking.Hotel{hotel}); err != nil {
		return nil, m.undoRoom(ctx, room.ID, err)
	}

	m.l.LogInfo("Room %v added to hotel %v", room.ID, hotel.ID)

	return &room, nil
}

// UpdateRoom replaces the description and price of a room. Its availability, bookings and
// owning hotel are kept.
func (m *Manager) UpdateRoom(ctx context.Context, roomID int, input RoomInput) (*booking.Room, error) {
	if err := m.validateInput(input); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	room, err := m.room(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if room.HotelID != input.HotelID {
		inputErr := booking.NewInputError()
		inputErr.AddError("hotelid", "room belongs to another hotel")

		return nil, inputErr
	}

	room.Type = booking.ParseRoomType(input.Type)
	room.Amenities = slices.Clone(input.Amenities)
	room.MaximumOccupancy = input.MaximumOccupancy
	room.PricePerNight = input.PricePerNight
	room.TotalPrice = booking.RoundMoney(input.PricePerNight * float64(input.MaximumOccupancy))

	if err = m.storage.Rooms.MergeAndSave(ctx, []booking.Room{room}); err != nil {
		return nil, &booking.PersistenceError{Store: "rooms", Err: err}
	}

	m.l.LogInfo("Room %v updated", room.ID)

	return &room, nil
}

// RemoveRoom deletes a room that is not booked and drops it from its hotel.
func (m *Manager) RemoveRoom(ctx context.Context, roomID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, err := m.room(ctx, roomID)
	if err != nil {
		return err
	}

	if room.IsBooked {
		return fmt.Errorf("remove room %v: %w", roomID, booking.ErrRoomBooked)
	}

	hotel, err := m.hotel(ctx, room.HotelID)
	if err != nil && !errors.Is(err, booking.ErrRecordNotFound) {
		return err
	}

	if err == nil {
		if hotel.IsRoomBooked(roomID) {
			return fmt.Errorf("remove room %v: %w", roomID, booking.ErrRoomBooked)
		}

		previous := hotel.Clone()
		hotel.AllRoomIDs = slices.DeleteFunc(hotel.AllRoomIDs, func(id int) bool { return id == roomID })

		if err = m.storage.Hotels.MergeAndSave(ctx, []booking.Hotel{hotel}); err != nil {
			return &booking.PersistenceError{Store: "hotels", Err: err}
		}

		if err = m.storage.Rooms.Remove(ctx, roomID); err != nil {
			if undoErr := m.storage.Hotels.MergeAndSave(context.WithoutCancel(ctx), []booking.Hotel{previous}); undoErr != nil {
				return &booking.InconsistencyError{
					Operation: "remove room",
					Written:   []string{"hotels"},
					Failed:    "rooms",
					Err:       errors.Join(err, undoErr),
				}
			}

			return &booking.PersistenceError{Store: "rooms", Err: err}
		}

		m.l.LogInfo("Room %v removed from hotel %v", roomID, hotel.ID)

		return nil
	}

	if err = m.storage.Rooms.Remove(ctx, roomID); err != nil {
		return &booking.PersistenceError{Store: "rooms", Err: err}
	}

	m.l.LogWarnf("Removed room %v of unknown hotel %v", roomID, room.HotelID)

	return nil
}

func (m *Manager) undoRoom(ctx context.Context, roomID int, cause error) error {
	if err := m.storage.Rooms.Remove(context.WithoutCancel(ctx), roomID); err != nil {
		m.l.LogErrorf("Could not remove room %v after failed hotel update: %v", roomID, err.Error())

		return &booking.InconsistencyError{
			Operation: "add room",
			Written:   []string{"rooms"},
			Failed:    "hotels",
			Err:       errors.Join(cause, err),
		}
	}

	return &booking.PersistenceError{Store: "hotels", Err: cause}
}

func (m *Manager) hotel(ctx context.Context, id int) (booking.Hotel, error) {
	hotels, err := m.storage.Hotels.ReadAll(ctx)
	if err != nil {
		return booking.Hotel{}, &booking.PersistenceError{Store: "hotels", Err: err}
	}

	for _, h := range hotels {
		if h.ID == id {
			return h, nil
		}
	}

	return booking.Hotel{}, booking.NewNotFoundError("hotel", id)
}

func (m *Manager) room(ctx context.Context, id int) (booking.Room, error) {
	rooms, err := m.storage.Rooms.ReadAll(ctx)
	if err != nil {
		return booking.Room{}, &booking.PersistenceError{Store: "rooms", Err: err}
	}

	for _, r := range rooms {
		if r.ID == id {
			return r, nil
		}
	}

	return booking.Room{}, booking.NewNotFoundError("room", id)
}

func (m *Manager) validateInput(input RoomInput) error {
	err := m.validate.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validate room: %w", err)
	}

	inputErr := booking.NewInputError()
	for _, fieldErr := range validationErrs {
		inputErr.AddError(strings.ToLower(fieldErr.Field()), fmt.Sprintf("failed on '%s'", fieldErr.Tag()))
	}

	return inputErr
}
