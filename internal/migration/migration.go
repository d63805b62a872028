package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/logger"
)

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
}

type Storage struct {
	Hotels booking.Repository[booking.Hotel]
	Rooms  booking.Repository[booking.Room]
}

type Seed struct {
	HotelName    string
	HotelAddress string
	// Open is when the seeded rooms become bookable; they stay open for Horizon.
	Open    time.Time
	Horizon time.Duration
}

type seedRoom struct {
	roomType         booking.RoomType
	amenities        []string
	maximumOccupancy int
	pricePerNight    float64
}

//nolint:gomnd
var rooms = []seedRoom{
	{booking.RoomTypeSingle, []string{"Wi-Fi", "TV"}, 1, 30},
	{booking.RoomTypeSingle, []string{"Wi-Fi", "TV", "Desk"}, 1, 35},
	{booking.RoomTypeDouble, []string{"Wi-Fi", "TV", "Mini bar"}, 2, 45},
	{booking.RoomTypeDouble, []string{"Wi-Fi", "TV", "Balcony"}, 2, 50},
	{booking.RoomTypeSuite, []string{"Wi-Fi", "TV", "Mini bar", "Jacuzzi"}, 3, 80},
	{booking.RoomTypeDeluxe, []string{"Wi-Fi", "TV", "Mini bar", "Sea view", "Room service"}, 4, 120},
}

// Up seeds one hotel and its rooms when the hotel store is empty. It returns the number of
// hotels created.
func Up(
	ctx context.Context,
	l *logger.Logger,
	storage Storage,
	hotelIDs, roomIDs idGenerator,
	seed Seed,
) (_ int, err error) {
	hotels, err := storage.Hotels.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read hotels: %w", err)
	}

	if len(hotels) > 0 {
		l.LogInfo("Hotels already present, skipping seed")

		return 0, nil
	}

	hotelID, err := hotelIDs.GetID(ctx)
	if err != nil {
		return 0, booking.ErrNextID
	}

	open := booking.NewWindow(seed.Open, seed.Open.Add(seed.Horizon))

	hotel := booking.Hotel{
		ID:            hotelID,
		Name:          seed.HotelName,
		Address:       seed.HotelAddress,
		AllRoomIDs:    make([]int, 0, len(rooms)),
		BookedRoomIDs: []int{},
	}

	seeded := make([]booking.Room, 0, len(rooms))

	for _, r := range rooms {
		roomID, err := roomIDs.GetID(ctx)
		if err != nil {
			return 0, booking.ErrNextID
		}

		seeded = append(seeded, booking.NewRoom(
			roomID, hotel.ID, r.roomType, r.amenities, r.maximumOccupancy, r.pricePerNight, open,
		))
		hotel.AllRoomIDs = append(hotel.AllRoomIDs, roomID)
	}

	if err = storage.Rooms.MergeAndSave(ctx, seeded); err != nil {
		return 0, fmt.Errorf("save seeded rooms: %w", err)
	}

	if err = storage.Hotels.MergeAndSave(ctx, []booking.Hotel{hotel}); err != nil {
		ids := hotel.AllRoomIDs

		if rmErr := storage.Rooms.Remove(context.WithoutCancel(ctx), ids...); rmErr != nil {
			l.LogErrorf("Could not remove seeded rooms after error %v", rmErr.Error())
		}

		return 0, fmt.Errorf("save seeded hotel: %w", err)
	}

	l.LogInfo("Seeded hotel %v %q with %v rooms", hotel.ID, hotel.Name, len(seeded))

	return 1, nil
}
