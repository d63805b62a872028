package app

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/pety02/hotelreservation/internal/account"
	"github.com/pety02/hotelreservation/internal/admin"
	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/config"
	"github.com/pety02/hotelreservation/internal/idgen/simple"
	"github.com/pety02/hotelreservation/internal/logger"
	"github.com/pety02/hotelreservation/internal/migration"
	"github.com/pety02/hotelreservation/internal/payment"
	"github.com/pety02/hotelreservation/internal/storage"
	"github.com/pety02/hotelreservation/internal/storage/file"
	"github.com/pety02/hotelreservation/internal/storage/memory"
)

const tracerName = "github.com/pety02/hotelreservation/internal/booking"

type repository[T storage.Record] interface {
	booking.Repository[T]
}

type stores struct {
	hotels       repository[booking.Hotel]
	rooms        repository[booking.Room]
	reservations repository[booking.Reservation]
	users        repository[booking.User]
	cards        repository[booking.DebitCard]
}

// App holds the services the console front end calls into.
type App struct {
	l        *logger.Logger
	conf     *config.Config
	stores   stores
	hotelIDs *simple.Generator
	roomIDs  *simple.Generator

	Booking  *booking.Manager
	Payments *payment.Processor
	Accounts *account.Manager
	Admin    *admin.Manager
}

func New(ctx context.Context, l *logger.Logger, conf *config.Config) (*App, error) {
	s, err := openStores(l, conf)
	if err != nil {
		return nil, err
	}

	hotelIDs, err := generatorFor(ctx, s.hotels)
	if err != nil {
		return nil, fmt.Errorf("seed hotel ids: %w", err)
	}

	roomIDs, err := generatorFor(ctx, s.rooms)
	if err != nil {
		return nil, fmt.Errorf("seed room ids: %w", err)
	}

	reservationIDs, err := generatorFor(ctx, s.reservations)
	if err != nil {
		return nil, fmt.Errorf("seed reservation ids: %w", err)
	}

	userIDs, err := generatorFor(ctx, s.users)
	if err != nil {
		return nil, fmt.Errorf("seed user ids: %w", err)
	}

	cardIDs, err := generatorFor(ctx, s.cards)
	if err != nil {
		return nil, fmt.Errorf("seed card ids: %w", err)
	}

	payments := payment.New(l.With("component", "payment"), s.cards)

	bookingManager := booking.New(
		l.With("component", "booking"),
		booking.Storage{
			Hotels:       s.hotels,
			Rooms:        s.rooms,
			Reservations: s.reservations,
			Users:        s.users,
		},
		payments,
		reservationIDs,
		booking.WithTracer(otel.Tracer(tracerName)),
	)

	accounts := account.New(
		l.With("component", "account"),
		account.Storage{Users: s.users, Cards: s.cards},
		userIDs,
		cardIDs,
	)

	adminManager := admin.New(
		l.With("component", "admin"),
		admin.Storage{Hotels: s.hotels, Rooms: s.rooms, Reservations: s.reservations},
		roomIDs,
		horizon(conf),
	)

	return &App{
		l:        l,
		conf:     conf,
		stores:   s,
		hotelIDs: hotelIDs,
		roomIDs:  roomIDs,
		Booking:  bookingManager,
		Payments: payments,
		Accounts: accounts,
		Admin:    adminManager,
	}, nil
}

// Seed creates the initial hotel when the stores are empty and seeding is enabled.
func (a *App) Seed(ctx context.Context) error {
	if !a.conf.SeedOnStart {
		return nil
	}

	_, err := migration.Up(
		ctx,
		a.l.With("component", "migration"),
		migration.Storage{Hotels: a.stores.hotels, Rooms: a.stores.rooms},
		a.hotelIDs,
		a.roomIDs,
		migration.Seed{
			HotelName:    a.conf.SeedHotelName,
			HotelAddress: a.conf.SeedHotelAddress,
			Open:         booking.NewDateTime(time.Now()).Truncate(24 * time.Hour), //nolint:gomnd
			Horizon:      horizon(a.conf),
		},
	)
	if err != nil {
		return fmt.Errorf("up seed migration: %w", err)
	}

	return nil
}

// FreeAll runs the room maintenance of every hotel and returns the freed room ids by hotel.
func (a *App) FreeAll(ctx context.Context) (map[int][]int, error) {
	hotels, err := a.stores.hotels.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read hotels: %w", err)
	}

	freed := make(map[int][]int)

	for i := range hotels {
		ids, err := a.Booking.Free(ctx, &hotels[i])
		if err != nil {
			return freed, fmt.Errorf("free rooms of hotel %v: %w", hotels[i].ID, err)
		}

		if len(ids) > 0 {
			freed[hotels[i].ID] = ids
		}
	}

	return freed, nil
}

// Run prepares the stores and runs one maintenance sweep. It is the entry point for the
// scheduler that keeps room availability up to date.
func Run(l *logger.Logger, conf *config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	a, err := New(ctx, l, conf)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if err = a.Seed(ctx); err != nil {
		return err
	}

	freed, err := a.FreeAll(ctx)
	if err != nil {
		return fmt.Errorf("maintenance sweep: %w", err)
	}

	l.LogInfo("Maintenance sweep finished, freed rooms by hotel: %v", freed)

	return nil
}

func openStores(l *logger.Logger, conf *config.Config) (stores, error) {
	if conf.StorageDriver == config.DriverMemory {
		return stores{
			hotels:       memory.New[booking.Hotel](memory.Config{L: l, Name: "hotels"}),
			rooms:        memory.New[booking.Room](memory.Config{L: l, Name: "rooms"}),
			reservations: memory.New[booking.Reservation](memory.Config{L: l, Name: "reservations"}),
			users:        memory.New[booking.User](memory.Config{L: l, Name: "users"}),
			cards:        memory.New[booking.DebitCard](memory.Config{L: l, Name: "debitCards"}),
		}, nil
	}

	var (
		s   stores
		err error
	)

	if s.hotels, err = openFile[booking.Hotel](l, conf.DataDir, "hotels.jsonl"); err != nil {
		return stores{}, err
	}

	if s.rooms, err = openFile[booking.Room](l, conf.DataDir, "rooms.jsonl"); err != nil {
		return stores{}, err
	}

	if s.reservations, err = openFile[booking.Reservation](l, conf.DataDir, "reservations.jsonl"); err != nil {
		return stores{}, err
	}

	if s.users, err = openFile[booking.User](l, conf.DataDir, "users.jsonl"); err != nil {
		return stores{}, err
	}

	if s.cards, err = openFile[booking.DebitCard](l, conf.DataDir, "debitCards.jsonl"); err != nil {
		return stores{}, err
	}

	return s, nil
}

func openFile[T storage.Record](l *logger.Logger, dir, name string) (repository[T], error) {
	store, err := file.New[T](file.Config{L: l, Path: filepath.Join(dir, name)})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}

	return store, nil
}

func generatorFor[T storage.Record](ctx context.Context, repo repository[T]) (*simple.Generator, error) {
	records, err := repo.ReadAll(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return simple.NewFrom(storage.MaxID(records)), nil
}

func horizon(conf *config.Config) time.Duration {
	return time.Duration(conf.AvailabilityHorizonDays) * 24 * time.Hour //nolint:gomnd
}
