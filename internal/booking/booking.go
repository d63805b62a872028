package booking

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pety02/hotelreservation/internal/logger"
)

// Repository is a store of one record type merged by id.
type Repository[T any] interface {
	ReadAll(ctx context.Context) ([]T, error)
	MergeAndSave(ctx context.Context, records []T) error
	Remove(ctx context.Context, ids ...int) error
}

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
}

type payer interface {
	MakeTransaction(ctx context.Context, hotel *Hotel, cardID int, amount float64) (*DebitCard, error)
	Refund(ctx context.Context, hotel *Hotel, cardID int, amount float64) (*DebitCard, error)
}

type Storage struct {
	Hotels       Repository[Hotel]
	Rooms        Repository[Room]
	Reservations Repository[Reservation]
	Users        Repository[User]
}

type Manager struct {
	mu          sync.Mutex
	l           *logger.Logger
	storage     Storage
	payer       payer
	idGenerator idGenerator
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(m *Manager)

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func New(l *logger.Logger, storage Storage, payer payer, idGenerator idGenerator, opts ...Option) *Manager {
	//nolint:exhaustruct
	m := &Manager{
		l:           l,
		storage:     storage,
		payer:       payer,
		idGenerator: idGenerator,
		tracer:      noop.NewTracerProvider().Tracer("booking"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

type RecommendInput struct {
	From   time.Time
	To     time.Time
	Guests int
}

func (r *RecommendInput) validate() error {
	inputErr := NewInputError()

	if !r.From.Before(r.To) {
		inputErr.AddError("from", "from must be before to")
	}

	if r.Guests < 1 {
		inputErr.AddError("guests", "provide at least one guest")
	}

	return inputErr.OrNil()
}

type BookInput struct {
	RoomID          int
	From            time.Time
	To              time.Time
	CancellationFee float64
}

func (b *BookInput) validate(now time.Time) error {
	inputErr := NewInputError()

	if b.RoomID < 1 {
		inputErr.AddError("roomID", "provide roomID")
	}

	if Nights(now, b.From) < 0 {
		inputErr.AddError("from", "from must not be in the past")
	}

	if Nights(now, b.To) < 0 {
		inputErr.AddError("to", "to must not be in the past")
	}

	if !b.From.Before(b.To) {
		inputErr.AddError("from", "from must be before to")
	} else if Nights(b.From, b.To) < 1 {
		inputErr.AddError("to", "stay must be at least one night")
	}

	if b.CancellationFee < 0 {
		inputErr.AddError("cancellationFee", "cancellationFee must not be negative")
	}

	return inputErr.OrNil()
}

// Recommend lists the hotel's free rooms that fit exactly guests people and have an
// available interval strictly around the requested stay.
func (m *Manager) Recommend(ctx context.Context, hotel *Hotel, input RecommendInput) (_ []Room, err error) {
	ctx, span := m.tracer.Start(ctx, "booking.Recommend", trace.WithAttributes(
		attribute.Int("guests", input.Guests),
	))
	defer func() { endSpan(span, err) }()

	if hotel == nil {
		return nil, missingArgument("hotel")
	}

	if err = input.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.loadHotel(ctx, hotel.ID)
	if err != nil {
		return nil, err
	}

	rooms, err := m.loadRooms(ctx)
	if err != nil {
		return nil, err
	}

	window := NewWindow(input.From, input.To)

	var recommended []Room

	for _, room := range rooms {
		if !h.HasRoom(room.ID) || h.IsRoomBooked(room.ID) || room.IsBooked {
			continue
		}

		if room.MaximumOccupancy != input.Guests {
			continue
		}

		if room.Availability.Offers(window) && room.Availability.IsFree(window) {
			recommended = append(recommended, room)
		}
	}

	return recommended, nil
}

// IsFree reports whether no booked interval of the hotel's room overlaps the stay.
func (m *Manager) IsFree(ctx context.Context, hotel *Hotel, roomID int, from, to time.Time) (bool, error) {
	if hotel == nil {
		return false, missingArgument("hotel")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.loadHotel(ctx, hotel.ID)
	if err != nil {
		return false, err
	}

	rooms, err := m.loadRooms(ctx)
	if err != nil {
		return false, err
	}

	room, ok := find(rooms, roomID)
	if !ok || !h.HasRoom(roomID) {
		return false, NewNotFoundError("room", roomID)
	}

	return room.Availability.IsFree(NewWindow(from, to)), nil
}

// Book reserves a room of hotel for user and charges the card. Nothing is written unless
// the payment succeeded. hotel and user are updated in place once every store is written.
//
//nolint:funlen,cyclop // it's linear simple code
func (m *Manager) Book(ctx context.Context, hotel *Hotel, user *User, input BookInput) (_ *Reservation, err error) {
	ctx, opID := ensureOperationID(ctx)

	ctx, span := m.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.Int("room.id", input.RoomID),
		attribute.String("operation.id", opID),
	))
	defer func() { endSpan(span, err) }()

	if hotel == nil || user == nil {
		return nil, missingArgument("hotel", "user")
	}

	if err = input.validate(m.now()); err != nil {
		return nil, err
	}

	l := m.l.WithContext(ctx).With("operationID", opID, "hotelID", hotel.ID, "userID", user.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.loadHotel(ctx, hotel.ID)
	if err != nil {
		return nil, err
	}

	u, err := m.loadUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	rooms, err := m.loadRooms(ctx)
	if err != nil {
		return nil, err
	}

	stored, ok := find(rooms, input.RoomID)
	if !ok || !h.HasRoom(stored.ID) {
		return nil, NewNotFoundError("room", input.RoomID)
	}

	window := NewWindow(input.From, input.To)

	room := stored.Clone()
	if stored.IsBooked || h.IsRoomBooked(stored.ID) || room.Availability.Book(window) != nil {
		availabilityErr := NewAvailabilityError()
		availabilityErr.AddUnavailableRoom(h.ID, stored.ID, window)

		return nil, availabilityErr
	}

	room.IsBooked = true

	stagedHotel := h.Clone()
	stagedHotel.markBooked(room.ID)

	//nolint:exhaustruct // id is assigned once funds are checked
	reservation := Reservation{
		FromDate:        window.Start,
		ToDate:          window.End,
		Rooms:           map[int]float64{room.ID: room.TotalPrice},
		BookedBy:        u.ID,
		CancellationFee: input.CancellationFee,
	}
	reservation.TotalPrice = reservation.CalculateTotalPrice()

	if u.DebitCard.Balance < reservation.TotalPrice {
		return nil, &InsufficientFundsError{
			CardID:   u.DebitCard.ID,
			Balance:  u.DebitCard.Balance,
			Required: reservation.TotalPrice,
		}
	}

	reservation.ID, err = m.idGenerator.GetID(ctx)
	if err != nil {
		return nil, ErrNextID
	}

	room.InReservations = append(room.InReservations, reservation.ID)

	card, err := m.payer.MakeTransaction(ctx, &stagedHotel, u.DebitCard.ID, reservation.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("pay for reservation %v: %w", reservation.ID, err)
	}

	stagedUser := u.Clone()
	stagedUser.Reservations[reservation.ID] = reservation.TotalPrice
	stagedUser.DebitCard.Balance = card.Balance

	steps := []step{
		mergeStep(storeRooms, m.storage.Rooms, []Room{room}, []Room{stored}, nil),
		mergeStep(storeHotels, m.storage.Hotels, []Hotel{stagedHotel}, []Hotel{h}, nil),
		mergeStep(storeReservations, m.storage.Reservations, []Reservation{reservation}, nil, []int{reservation.ID}),
		mergeStep(storeUsers, m.storage.Users, []User{stagedUser}, []User{u}, nil),
	}

	refund := func(ctx context.Context) error {
		_, err := m.payer.Refund(ctx, &stagedHotel, card.ID, reservation.TotalPrice)

		return err //nolint:wrapcheck
	}

	if err = m.commit(ctx, l, "book", steps, &compensation{store: storeCards, run: refund}); err != nil {
		return nil, err
	}

	*hotel = stagedHotel
	*user = stagedUser

	l.LogInfo("Room %v booked for %v, reservation %v, charged %.2f", room.ID, window, reservation.ID, reservation.TotalPrice)

	return &reservation, nil
}

// Cancel flags the user's reservation cancelled, frees its rooms and charges the fixed
// cancellation fee. A cancelled reservation cannot be cancelled again.
//
//nolint:funlen,cyclop // it's linear simple code
func (m *Manager) Cancel(ctx context.Context, hotel *Hotel, user *User, reservationID int) (_ *Reservation, err error) {
	ctx, opID := ensureOperationID(ctx)

	ctx, span := m.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.Int("reservation.id", reservationID),
		attribute.String("operation.id", opID),
	))
	defer func() { endSpan(span, err) }()

	if hotel == nil || user == nil {
		return nil, missingArgument("hotel", "user")
	}

	l := m.l.WithContext(ctx).With("operationID", opID, "hotelID", hotel.ID, "userID", user.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.loadHotel(ctx, hotel.ID)
	if err != nil {
		return nil, err
	}

	u, err := m.loadUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if !u.HasReservation(reservationID) {
		return nil, NewNotFoundError("reservation", reservationID)
	}

	reservations, err := m.loadReservations(ctx)
	if err != nil {
		return nil, err
	}

	stored, ok := find(reservations, reservationID)
	if !ok || stored.BookedBy != u.ID {
		return nil, NewNotFoundError("reservation", reservationID)
	}

	if stored.Cancelled {
		return nil, fmt.Errorf("cancel reservation %v: %w", reservationID, ErrAlreadyCancelled)
	}

	if u.DebitCard.Balance < FixedCancellationFee {
		return nil, &InsufficientFundsError{
			CardID:   u.DebitCard.ID,
			Balance:  u.DebitCard.Balance,
			Required: FixedCancellationFee,
		}
	}

	rooms, err := m.loadRooms(ctx)
	if err != nil {
		return nil, err
	}

	stagedHotel := h.Clone()

	var updatedRooms, previousRooms []Room

	roomIDs := make([]int, 0, len(stored.Rooms))
	for roomID := range stored.Rooms {
		roomIDs = append(roomIDs, roomID)
	}

	slices.Sort(roomIDs)

	for _, roomID := range roomIDs {
		previous, ok := find(rooms, roomID)
		if !ok || !h.HasRoom(roomID) {
			return nil, NewNotFoundError("room", roomID)
		}

		room := previous.Clone()
		if !room.Availability.Release(stored.Window()) {
			l.LogWarnf("Room %v no longer holds %v, leaving it untouched", roomID, stored.Window())

			continue
		}

		room.IsBooked = false
		stagedHotel.markFree(roomID)

		updatedRooms = append(updatedRooms, room)
		previousRooms = append(previousRooms, previous)
	}

	reservation := stored.Clone()
	reservation.Cancelled = true
	reservation.TotalPrice = reservation.CalculateTotalPrice()

	card, err := m.payer.MakeTransaction(ctx, &stagedHotel, u.DebitCard.ID, FixedCancellationFee)
	if err != nil {
		return nil, fmt.Errorf("pay cancellation fee for reservation %v: %w", reservationID, err)
	}

	stagedUser := u.Clone()
	stagedUser.Reservations[reservation.ID] = reservation.TotalPrice
	stagedUser.DebitCard.Balance = card.Balance

	steps := make([]step, 0, 4) //nolint:gomnd
	if len(updatedRooms) > 0 {
		steps = append(steps, mergeStep(storeRooms, m.storage.Rooms, updatedRooms, previousRooms, nil))
	}

	steps = append(steps,
		mergeStep(storeHotels, m.storage.Hotels, []Hotel{stagedHotel}, []Hotel{h}, nil),
		mergeStep(storeReservations, m.storage.Reservations, []Reservation{reservation}, []Reservation{stored}, nil),
		mergeStep(storeUsers, m.storage.Users, []User{stagedUser}, []User{u}, nil),
	)

	refund := func(ctx context.Context) error {
		_, err := m.payer.Refund(ctx, &stagedHotel, card.ID, FixedCancellationFee)

		return err //nolint:wrapcheck
	}

	if err = m.commit(ctx, l, "cancel", steps, &compensation{store: storeCards, run: refund}); err != nil {
		return nil, err
	}

	*hotel = stagedHotel
	*user = stagedUser

	l.LogInfo("Reservation %v cancelled, charged %.2f", reservation.ID, FixedCancellationFee)

	return &reservation, nil
}

// Free returns the hotel's rooms whose stays have ended to the available pool. It is meant
// to be called by a scheduler. The ids of the rooms that changed are returned.
//
//nolint:funlen,cyclop // it's linear simple code
func (m *Manager) Free(ctx context.Context, hotel *Hotel) (_ []int, err error) {
	ctx, opID := ensureOperationID(ctx)

	ctx, span := m.tracer.Start(ctx, "booking.Free", trace.WithAttributes(
		attribute.String("operation.id", opID),
	))
	defer func() { endSpan(span, err) }()

	if hotel == nil {
		return nil, missingArgument("hotel")
	}

	l := m.l.WithContext(ctx).With("operationID", opID, "hotelID", hotel.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.loadHotel(ctx, hotel.ID)
	if err != nil {
		return nil, err
	}

	rooms, err := m.loadRooms(ctx)
	if err != nil {
		return nil, err
	}

	now := NewDateTime(m.now())
	stagedHotel := h.Clone()

	var (
		updatedRooms, previousRooms []Room
		freed                       []int
	)

	for _, stored := range rooms {
		if !h.HasRoom(stored.ID) {
			continue
		}

		room := stored.Clone()
		if len(room.Availability.ReleaseEnded(now)) == 0 {
			continue
		}

		if len(room.Availability.Booked()) == 0 {
			room.IsBooked = false
			stagedHotel.markFree(room.ID)
		}

		updatedRooms = append(updatedRooms, room)
		previousRooms = append(previousRooms, stored)
		freed = append(freed, room.ID)
	}

	if len(freed) == 0 {
		*hotel = h

		return nil, nil
	}

	steps := []step{
		mergeStep(storeRooms, m.storage.Rooms, updatedRooms, previousRooms, nil),
		mergeStep(storeHotels, m.storage.Hotels, []Hotel{stagedHotel}, []Hotel{h}, nil),
	}

	if err = m.commit(ctx, l, "free", steps, nil); err != nil {
		return nil, err
	}

	*hotel = stagedHotel

	l.LogInfo("Freed rooms %v", freed)

	return freed, nil
}

func (m *Manager) loadHotel(ctx context.Context, id int) (Hotel, error) {
	hotels, err := m.storage.Hotels.ReadAll(ctx)
	if err != nil {
		return Hotel{}, &PersistenceError{Store: storeHotels, Err: err}
	}

	hotel, ok := find(hotels, id)
	if !ok {
		return Hotel{}, NewNotFoundError("hotel", id)
	}

	return hotel, nil
}

func (m *Manager) loadUser(ctx context.Context, id int) (User, error) {
	users, err := m.storage.Users.ReadAll(ctx)
	if err != nil {
		return User{}, &PersistenceError{Store: storeUsers, Err: err}
	}

	user, ok := find(users, id)
	if !ok {
		return User{}, NewNotFoundError("user", id)
	}

	if user.Reservations == nil {
		user.Reservations = make(map[int]float64)
	}

	return user, nil
}

func (m *Manager) loadRooms(ctx context.Context) ([]Room, error) {
	rooms, err := m.storage.Rooms.ReadAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Store: storeRooms, Err: err}
	}

	return rooms, nil
}

func (m *Manager) loadReservations(ctx context.Context) ([]Reservation, error) {
	reservations, err := m.storage.Reservations.ReadAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Store: storeReservations, Err: err}
	}

	return reservations, nil
}

func find[T interface{ GetID() int }](records []T, id int) (T, bool) {
	for _, record := range records {
		if record.GetID() == id {
			return record, true
		}
	}

	var zero T

	return zero, false
}

func missingArgument(names ...string) error {
	inputErr := NewInputError()
	for _, name := range names {
		inputErr.AddError(name, "provide "+name)
	}

	return inputErr
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
