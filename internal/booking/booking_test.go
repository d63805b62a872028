package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/idgen/simple"
	"github.com/pety02/hotelreservation/internal/logger"
	"github.com/pety02/hotelreservation/internal/payment"
	"github.com/pety02/hotelreservation/internal/storage/memory"
)

type fixture struct {
	ctx          context.Context
	hotels       *memory.DB[booking.Hotel]
	rooms        *memory.DB[booking.Room]
	reservations *memory.DB[booking.Reservation]
	users        *memory.DB[booking.User]
	cards        *memory.DB[booking.DebitCard]
	payments     *payment.Processor
	manager      *booking.Manager
	hotel        booking.Hotel
	user         booking.User
	now          time.Time
}

func newFixture(t *testing.T, balance float64) *fixture {
	t.Helper()

	l := logger.NewNop()
	f := &fixture{
		ctx:          context.Background(),
		hotels:       memory.New[booking.Hotel](memory.Config{L: l, Name: "hotels"}),
		rooms:        memory.New[booking.Room](memory.Config{L: l, Name: "rooms"}),
		reservations: memory.New[booking.Reservation](memory.Config{L: l, Name: "reservations"}),
		users:        memory.New[booking.User](memory.Config{L: l, Name: "users"}),
		cards:        memory.New[booking.DebitCard](memory.Config{L: l, Name: "debitCards"}),
		now:          day(time.April, 20),
	}

	open := window(time.May, 1, time.December, 31)
	rooms := []booking.Room{
		booking.NewRoom(1, 1, booking.RoomTypeSingle, []string{"TV"}, 1, 30, open),
		booking.NewRoom(2, 1, booking.RoomTypeSingle, []string{"TV"}, 1, 35, open),
		booking.NewRoom(3, 1, booking.RoomTypeDouble, []string{"TV", "Mini bar"}, 2, 45, open),
		booking.NewRoom(4, 1, booking.RoomTypeSuite, []string{"Jacuzzi"}, 3, 80, open),
		booking.NewRoom(5, 1, booking.RoomTypeDouble, []string{"Balcony"}, 2, 50, open),
	}

	f.hotel = booking.Hotel{ID: 1, Name: "Test Hotel", AllRoomIDs: []int{1, 2, 3, 4, 5}, BookedRoomIDs: []int{}}
	f.user = booking.User{
		ID:           1,
		Username:     "guest01",
		Reservations: map[int]float64{},
		DebitCard:    booking.CardRef{ID: 1, Balance: balance},
	}

	require.NoError(t, f.rooms.MergeAndSave(f.ctx, rooms))
	require.NoError(t, f.hotels.MergeAndSave(f.ctx, []booking.Hotel{f.hotel}))
	require.NoError(t, f.users.MergeAndSave(f.ctx, []booking.User{f.user}))
	require.NoError(t, f.cards.MergeAndSave(f.ctx, []booking.DebitCard{{ID: 1, Balance: balance, OwnerID: 1}}))

	f.payments = payment.New(l, f.cards)
	f.manager = booking.New(
		l,
		booking.Storage{Hotels: f.hotels, Rooms: f.rooms, Reservations: f.reservations, Users: f.users},
		f.payments,
		simple.New(),
		booking.WithClock(func() time.Time { return f.now }),
	)

	return f
}

func (f *fixture) room(t *testing.T, id int) booking.Room {
	t.Helper()

	rooms, err := f.rooms.ReadAll(f.ctx)
	require.NoError(t, err)

	for _, r := range rooms {
		if r.ID == id {
			return r
		}
	}

	t.Fatalf("room %d not stored", id)

	return booking.Room{}
}

func (f *fixture) balance(t *testing.T) float64 {
	t.Helper()

	b, err := f.payments.Balance(f.ctx, f.user.DebitCard.ID)
	require.NoError(t, err)

	return b
}

func (f *fixture) book(t *testing.T, roomID int, from, to time.Time) *booking.Reservation {
	t.Helper()

	reservation, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID:          roomID,
		From:            from,
		To:              to,
		CancellationFee: 15,
	})
	require.NoError(t, err)

	return reservation
}

func roomIDs(rooms []booking.Room) []int {
	ids := make([]int, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}

	return ids
}

func TestBookChargesCardAndMarksRoom(t *testing.T) {
	f := newFixture(t, 200)

	reservation := f.book(t, 3, day(time.May, 10), day(time.May, 11))

	require.Equal(t, 1, reservation.ID)
	require.InDelta(t, 90.0, reservation.TotalPrice, 0.001)
	require.Equal(t, map[int]float64{3: 90}, reservation.Rooms)
	require.Equal(t, f.user.ID, reservation.BookedBy)
	require.False(t, reservation.Cancelled)

	require.InDelta(t, 110.0, f.balance(t), 0.001)
	require.InDelta(t, 110.0, f.user.DebitCard.Balance, 0.001)
	require.InDelta(t, 90.0, f.hotel.Incomes, 0.001)
	require.Equal(t, []int{3}, f.hotel.BookedRoomIDs)
	require.Equal(t, map[int]float64{1: 90}, f.user.Reservations)

	room := f.room(t, 3)
	require.True(t, room.IsBooked)
	require.Equal(t, []int{1}, room.InReservations)
	require.Equal(t, []booking.Window{window(time.May, 10, time.May, 11)}, room.Availability.Booked())

	stored, err := f.reservations.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, *reservation, stored[0])

	hotels, err := f.hotels.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.hotel, hotels[0])
}

func singleRoomThree(t *testing.T, f *fixture) {
	t.Helper()

	open := booking.NewWindow(
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	)

	require.NoError(t, f.rooms.MergeAndSave(f.ctx, []booking.Room{
		booking.NewRoom(3, 1, booking.RoomTypeSingle, []string{"TV"}, 1, 30, open),
	}))
}

func TestBookThreeNightsInSingleRoom(t *testing.T) {
	f := newFixture(t, 200)
	singleRoomThree(t, f)

	reservation := f.book(t, 3,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC),
	)

	require.InDelta(t, 90.0, reservation.TotalPrice, 0.001)
	require.InDelta(t, 110.0, f.balance(t), 0.001)
	require.InDelta(t, 90.0, f.hotel.Incomes, 0.001)
	require.True(t, f.room(t, 3).IsBooked)

	rooms, err := f.manager.Recommend(f.ctx, &f.hotel, booking.RecommendInput{
		From:   time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		Guests: 1,
	})
	require.NoError(t, err)
	require.NotContains(t, roomIDs(rooms), 3)
}

func TestBookSingleRoomWithoutFunds(t *testing.T) {
	f := newFixture(t, 50)
	singleRoomThree(t, f)

	roomsWrites, cardsWrites := f.rooms.Writes(), f.cards.Writes()

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, booking.ErrInsufficientFunds)
	require.False(t, f.room(t, 3).IsBooked)
	require.Equal(t, roomsWrites, f.rooms.Writes())
	require.Equal(t, cardsWrites, f.cards.Writes())
	require.Zero(t, f.hotel.Incomes)
}

func TestBookMultipleNights(t *testing.T) {
	f := newFixture(t, 1000)

	reservation := f.book(t, 3, day(time.May, 10), day(time.May, 13))

	require.InDelta(t, 270.0, reservation.TotalPrice, 0.001)
	require.InDelta(t, 730.0, f.balance(t), 0.001)
}

func TestBookWithInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t, 50)

	writes := []int{f.hotels.Writes(), f.rooms.Writes(), f.reservations.Writes(), f.users.Writes(), f.cards.Writes()}

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   day(time.May, 10),
		To:     day(time.May, 11),
	})
	require.ErrorIs(t, err, booking.ErrInsufficientFunds)

	var fundsErr *booking.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	require.InDelta(t, 90.0, fundsErr.Required, 0.001)

	require.Equal(t, writes,
		[]int{f.hotels.Writes(), f.rooms.Writes(), f.reservations.Writes(), f.users.Writes(), f.cards.Writes()})
	require.InDelta(t, 50.0, f.balance(t), 0.001)
	require.False(t, f.room(t, 3).IsBooked)
}

func TestBookRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, 200)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID:          0,
		From:            day(time.May, 11),
		To:              day(time.May, 10),
		CancellationFee: -1,
	})

	inputErr := booking.IsInputError(err)
	require.NotNil(t, inputErr)
	require.Equal(t, 3, inputErr.FieldsCount())

	_, err = f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   day(time.April, 10),
		To:     day(time.April, 12),
	})

	inputErr = booking.IsInputError(err)
	require.NotNil(t, inputErr)
	require.Contains(t, inputErr.Fields(), "from")
	require.Contains(t, inputErr.Fields(), "to")
	require.False(t, f.room(t, 3).IsBooked)

	f.now = time.Date(2024, time.May, 10, 15, 0, 0, 0, time.UTC)

	_, err = f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   day(time.May, 10),
		To:     day(time.May, 11),
	})
	require.NoError(t, err, "a stay may start earlier today")

	_, err = f.manager.Book(f.ctx, nil, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})
	require.NotNil(t, booking.IsInputError(err))

	_, err = f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC),
		To:     time.Date(2024, time.May, 10, 20, 0, 0, 0, time.UTC),
	})
	require.NotNil(t, booking.IsInputError(err), "a stay within one day has no nights")
}

func TestBookUnknownRoomOrUser(t *testing.T) {
	f := newFixture(t, 200)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 42, From: day(time.May, 10), To: day(time.May, 11)})
	require.ErrorIs(t, err, booking.ErrRecordNotFound)

	stranger := booking.User{ID: 99}
	_, err = f.manager.Book(f.ctx, &f.hotel, &stranger, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})
	require.ErrorIs(t, err, booking.ErrRecordNotFound)
}

func TestBookUnavailableRoom(t *testing.T) {
	f := newFixture(t, 1000)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{
		RoomID: 3,
		From:   time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NotNil(t, booking.IsAvailabilityError(err), "the room is not open in January")

	f.book(t, 3, day(time.May, 10), day(time.May, 11))

	_, err = f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.June, 1), To: day(time.June, 2)})

	availabilityErr := booking.IsAvailabilityError(err)
	require.NotNil(t, availabilityErr)
	require.Equal(t, 1, availabilityErr.UnavailableRoomsCount())
}

func TestRecommendMatchesOccupancyAndSkipsBookedRooms(t *testing.T) {
	f := newFixture(t, 200)

	input := booking.RecommendInput{From: day(time.May, 20), To: day(time.May, 22), Guests: 2}

	rooms, err := f.manager.Recommend(f.ctx, &f.hotel, input)
	require.NoError(t, err)
	require.Equal(t, []int{3, 5}, roomIDs(rooms))

	rooms, err = f.manager.Recommend(f.ctx, &f.hotel, booking.RecommendInput{From: day(time.May, 20), To: day(time.May, 22), Guests: 3})
	require.NoError(t, err)
	require.Equal(t, []int{4}, roomIDs(rooms), "only an exact occupancy match is offered")

	f.book(t, 3, day(time.May, 10), day(time.May, 11))

	rooms, err = f.manager.Recommend(f.ctx, &f.hotel, input)
	require.NoError(t, err)
	require.Equal(t, []int{5}, roomIDs(rooms))

	rooms, err = f.manager.Recommend(f.ctx, &f.hotel, booking.RecommendInput{From: day(time.May, 1), To: day(time.May, 3), Guests: 2})
	require.NoError(t, err)
	require.Empty(t, rooms, "a stay starting on the first open day is not strictly inside the interval")

	_, err = f.manager.Recommend(f.ctx, &f.hotel, booking.RecommendInput{From: day(time.May, 3), To: day(time.May, 1), Guests: 0})
	require.NotNil(t, booking.IsInputError(err))
}

func TestIsFree(t *testing.T) {
	f := newFixture(t, 200)
	f.book(t, 3, day(time.May, 10), day(time.May, 12))

	free, err := f.manager.IsFree(f.ctx, &f.hotel, 3, day(time.May, 11), day(time.May, 14))
	require.NoError(t, err)
	require.False(t, free)

	free, err = f.manager.IsFree(f.ctx, &f.hotel, 3, day(time.May, 12), day(time.May, 14))
	require.NoError(t, err)
	require.True(t, free)

	_, err = f.manager.IsFree(f.ctx, &f.hotel, 77, day(time.May, 12), day(time.May, 14))
	require.ErrorIs(t, err, booking.ErrRecordNotFound)
}

func TestCancelChargesFixedFeeAndFreesRoom(t *testing.T) {
	f := newFixture(t, 200)
	booked := f.book(t, 3, day(time.May, 10), day(time.May, 11))

	cancelled, err := f.manager.Cancel(f.ctx, &f.hotel, &f.user, booked.ID)
	require.NoError(t, err)

	require.True(t, cancelled.Cancelled)
	require.InDelta(t, 105.0, cancelled.TotalPrice, 0.001)
	require.InDelta(t, 10.0, f.balance(t), 0.001)
	require.InDelta(t, 10.0, f.user.DebitCard.Balance, 0.001)
	require.InDelta(t, 190.0, f.hotel.Incomes, 0.001)
	require.Empty(t, f.hotel.BookedRoomIDs)
	require.InDelta(t, 105.0, f.user.Reservations[booked.ID], 0.001)

	room := f.room(t, 3)
	require.False(t, room.IsBooked)
	require.Empty(t, room.Availability.Booked())
	require.Equal(t, []booking.Window{window(time.May, 1, time.December, 31)}, room.Availability.Available())

	_, err = f.manager.Cancel(f.ctx, &f.hotel, &f.user, booked.ID)
	require.ErrorIs(t, err, booking.ErrAlreadyCancelled)
	require.InDelta(t, 10.0, f.balance(t), 0.001)
}

func TestCancelNeedsFundsForFee(t *testing.T) {
	f := newFixture(t, 150)
	booked := f.book(t, 3, day(time.May, 10), day(time.May, 11))

	_, err := f.manager.Cancel(f.ctx, &f.hotel, &f.user, booked.ID)
	require.ErrorIs(t, err, booking.ErrInsufficientFunds)
	require.True(t, f.room(t, 3).IsBooked)
}

func TestCancelOtherUsersReservation(t *testing.T) {
	f := newFixture(t, 200)
	booked := f.book(t, 3, day(time.May, 10), day(time.May, 11))

	other := booking.User{ID: 2, Reservations: map[int]float64{}, DebitCard: booking.CardRef{ID: 2, Balance: 500}}
	require.NoError(t, f.users.MergeAndSave(f.ctx, []booking.User{other}))

	_, err := f.manager.Cancel(f.ctx, &f.hotel, &other, booked.ID)
	require.ErrorIs(t, err, booking.ErrRecordNotFound)

	_, err = f.manager.Cancel(f.ctx, &f.hotel, &f.user, 404)
	require.ErrorIs(t, err, booking.ErrRecordNotFound)
}

func TestFreeReleasesEndedStays(t *testing.T) {
	f := newFixture(t, 2000)
	f.book(t, 3, day(time.May, 10), day(time.May, 12))
	f.book(t, 5, day(time.May, 10), day(time.May, 20))

	f.now = time.Date(2024, time.May, 11, 12, 0, 0, 0, time.UTC)

	freed, err := f.manager.Free(f.ctx, &f.hotel)
	require.NoError(t, err)
	require.Empty(t, freed)

	f.now = day(time.May, 12)
	f.reservations.FailWritesAfter(0, nil)

	freed, err = f.manager.Free(f.ctx, &f.hotel)
	require.NoError(t, err, "freeing rooms does not rewrite reservations")
	require.Equal(t, []int{3}, freed)
	require.Equal(t, []int{5}, f.hotel.BookedRoomIDs)

	room := f.room(t, 3)
	require.False(t, room.IsBooked)
	require.Empty(t, room.Availability.Booked())
	require.True(t, f.room(t, 5).IsBooked)

	rooms, err := f.manager.Recommend(f.ctx, &f.hotel, booking.RecommendInput{From: day(time.June, 1), To: day(time.June, 3), Guests: 2})
	require.NoError(t, err)
	require.Equal(t, []int{3}, roomIDs(rooms))
}

func TestBookRollsBackWhenHotelWriteFails(t *testing.T) {
	f := newFixture(t, 200)
	hotelBefore := f.hotel.Clone()
	userBefore := f.user.Clone()

	f.hotels.FailWritesAfter(0, nil)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})

	var persistenceErr *booking.PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	require.Equal(t, "hotels", persistenceErr.Store)
	require.ErrorIs(t, err, memory.ErrInjectedFailure)
	require.Nil(t, booking.IsInconsistencyError(err))

	require.InDelta(t, 200.0, f.balance(t), 0.001, "the payment is refunded")
	require.False(t, f.room(t, 3).IsBooked)
	require.Empty(t, f.room(t, 3).Availability.Booked())

	reservations, err := f.reservations.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Empty(t, reservations)

	require.Equal(t, hotelBefore, f.hotel)
	require.Equal(t, userBefore, f.user)
}

func TestBookRollsBackWhenUserWriteFails(t *testing.T) {
	f := newFixture(t, 200)

	f.users.FailWritesAfter(0, nil)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})

	var persistenceErr *booking.PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	require.Equal(t, "users", persistenceErr.Store)

	reservations, err := f.reservations.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Empty(t, reservations, "the created reservation is removed")

	hotels, err := f.hotels.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Zero(t, hotels[0].Incomes)
	require.Empty(t, hotels[0].BookedRoomIDs)
	require.InDelta(t, 200.0, f.balance(t), 0.001)
}

func TestBookReportsInconsistencyWhenRefundFails(t *testing.T) {
	f := newFixture(t, 200)

	f.hotels.FailWritesAfter(0, nil)
	f.cards.FailWritesAfter(1, errors.New("card store offline"))

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})

	inconsistencyErr := booking.IsInconsistencyError(err)
	require.NotNil(t, inconsistencyErr)
	require.Equal(t, "book", inconsistencyErr.Operation)
	require.Equal(t, []string{"debitCards"}, inconsistencyErr.Written, "rooms were restored, the card was not")
	require.Equal(t, "hotels", inconsistencyErr.Failed)
	require.ErrorIs(t, err, memory.ErrInjectedFailure)

	require.InDelta(t, 110.0, f.balance(t), 0.001, "the card keeps the charge that could not be refunded")
	require.False(t, f.room(t, 3).IsBooked)
}

func TestBookNamesCardStoreWhenFirstWriteAndRefundFail(t *testing.T) {
	f := newFixture(t, 200)

	f.rooms.FailWritesAfter(0, nil)
	f.cards.FailWritesAfter(1, nil)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})

	inconsistencyErr := booking.IsInconsistencyError(err)
	require.NotNil(t, inconsistencyErr)
	require.Equal(t, []string{"debitCards"}, inconsistencyErr.Written)
	require.Equal(t, "rooms", inconsistencyErr.Failed)
	require.InDelta(t, 110.0, f.balance(t), 0.001)
}

func TestBookNamesStoreWhoseUndoFailed(t *testing.T) {
	f := newFixture(t, 200)

	f.hotels.FailWritesAfter(0, nil)
	f.rooms.FailWritesAfter(1, nil)

	_, err := f.manager.Book(f.ctx, &f.hotel, &f.user, booking.BookInput{RoomID: 3, From: day(time.May, 10), To: day(time.May, 11)})

	inconsistencyErr := booking.IsInconsistencyError(err)
	require.NotNil(t, inconsistencyErr)
	require.Equal(t, []string{"rooms"}, inconsistencyErr.Written)
	require.Equal(t, "hotels", inconsistencyErr.Failed)
	require.True(t, f.room(t, 3).IsBooked, "the booked room could not be restored")
	require.InDelta(t, 200.0, f.balance(t), 0.001, "the payment was refunded")
}

func TestCancelRollsBackWhenReservationWriteFails(t *testing.T) {
	f := newFixture(t, 200)
	booked := f.book(t, 3, day(time.May, 10), day(time.May, 11))

	f.reservations.FailWritesAfter(0, nil)

	_, err := f.manager.Cancel(f.ctx, &f.hotel, &f.user, booked.ID)

	var persistenceErr *booking.PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	require.Equal(t, "reservations", persistenceErr.Store)

	require.InDelta(t, 110.0, f.balance(t), 0.001)
	require.True(t, f.room(t, 3).IsBooked)

	hotels, err := f.hotels.ReadAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, []int{3}, hotels[0].BookedRoomIDs)
	require.InDelta(t, 90.0, hotels[0].Incomes, 0.001)
}

func TestOperationIDIsKept(t *testing.T) {
	ctx := booking.NewContextWithOperationID(context.Background(), "op-1")

	id, ok := booking.OperationIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "op-1", id)

	_, ok = booking.OperationIDFromContext(context.Background())
	require.False(t, ok)
}
