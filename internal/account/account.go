package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/logger"
)

const (
	ibanPrefix     = "BGN"
	ibanDigits     = 10
	cardValidYears = 4
)

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
}

type Storage struct {
	Users booking.Repository[booking.User]
	Cards booking.Repository[booking.DebitCard]
}

type Manager struct {
	mu       sync.Mutex
	l        *logger.Logger
	storage  Storage
	userIDs  idGenerator
	cardIDs  idGenerator
	validate *validator.Validate
	now      func() time.Time
}

func New(l *logger.Logger, storage Storage, userIDs, cardIDs idGenerator) *Manager {
	//nolint:exhaustruct
	return &Manager{
		l:        l,
		storage:  storage,
		userIDs:  userIDs,
		cardIDs:  cardIDs,
		validate: validator.New(),
		now:      time.Now,
	}
}

type RegisterInput struct {
	Username       string  `validate:"required,alphanum,min=6,max=20"`
	Email          string  `validate:"required,email"`
	Password       string  `validate:"required,min=8,max=16"`
	RepeatPassword string  `validate:"required,eqfield=Password"`
	Balance        float64 `validate:"gt=0"`
}

// Register creates a user together with a debit card holding the opening balance.
func (m *Manager) Register(ctx context.Context, input RegisterInput) (*booking.User, *booking.DebitCard, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := m.validateInput(input); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.storage.Users.ReadAll(ctx)
	if err != nil {
		return nil, nil, &booking.PersistenceError{Store: "users", Err: err}
	}

	for _, u := range users {
		if strings.EqualFold(u.Username, input.Username) {
			inputErr := booking.NewInputError()
			inputErr.AddError("username", "username is taken")

			return nil, nil, inputErr
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := m.userIDs.GetID(ctx)
	if err != nil {
		return nil, nil, booking.ErrNextID
	}

	cardID, err := m.cardIDs.GetID(ctx)
	if err != nil {
		return nil, nil, booking.ErrNextID
	}

	iban, err := generateIBAN()
	if err != nil {
		return nil, nil, err
	}

	now := booking.NewDateTime(m.now())

	card := booking.DebitCard{
		ID:             cardID,
		IBAN:           iban,
		CreationDate:   now,
		ExpirationDate: booking.DateTime{Time: now.AddDate(cardValidYears, 0, 0)},
		Balance:        booking.RoundMoney(input.Balance),
		OwnerID:        userID,
	}

	user := booking.User{
		ID:           userID,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		Reservations: map[int]float64{},
		DebitCard:    booking.CardRef{ID: card.ID, Balance: card.Balance},
	}

	if err = m.storage.Cards.MergeAndSave(ctx, []booking.DebitCard{card}); err != nil {
		return nil, nil, &booking.PersistenceError{Store: "debitCards", Err: err}
	}

	if err = m.storage.Users.MergeAndSave(ctx, []booking.User{user}); err != nil {
		if rmErr := m.storage.Cards.Remove(context.WithoutCancel(ctx), card.ID); rmErr != nil {
			m.l.LogErrorf("Could not remove card %v of unregistered user: %v", card.ID, rmErr.Error())

			return nil, nil, &booking.InconsistencyError{
				Operation: "register",
				Written:   []string{"debitCards"},
				Failed:    "users",
				Err:       errors.Join(err, rmErr),
			}
		}

		return nil, nil, &booking.PersistenceError{Store: "users", Err: err}
	}

	m.l.LogInfo("User %v registered with card %v", user.ID, card.ID)

	return &user, &card, nil
}

// Login checks the credentials and returns the user with the card balance read from the
// card store.
func (m *Manager) Login(ctx context.Context, username, password string) (*booking.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, err := m.storage.Users.ReadAll(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Store: "users", Err: err}
	}

	var user *booking.User

	for i := range users {
		if users[i].Username == strings.TrimSpace(username) {
			user = &users[i]

			break
		}
	}

	if user == nil {
		return nil, booking.ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, booking.ErrInvalidCredentials
	}

	cards, err := m.storage.Cards.ReadAll(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Store: "debitCards", Err: err}
	}

	for _, card := range cards {
		if card.ID == user.DebitCard.ID && card.Balance != user.DebitCard.Balance {
			m.l.LogWarnf("User %v cached balance %.2f differs from card %v balance %.2f",
				user.ID, user.DebitCard.Balance, card.ID, card.Balance)

			user.DebitCard.Balance = card.Balance
		}
	}

	if user.Reservations == nil {
		user.Reservations = map[int]float64{}
	}

	return user, nil
}

func (m *Manager) validateInput(input RegisterInput) error {
	err := m.validate.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validate registration: %w", err)
	}

	inputErr := booking.NewInputError()
	for _, fieldErr := range validationErrs {
		inputErr.AddError(strings.ToLower(fieldErr.Field()), fmt.Sprintf("failed on '%s'", fieldErr.Tag()))
	}

	return inputErr
}

func generateIBAN() (string, error) {
	var sb strings.Builder

	sb.WriteString(ibanPrefix)

	for range ibanDigits {
		digit, err := rand.Int(rand.Reader, big.NewInt(10)) //nolint:gomnd
		if err != nil {
			return "", fmt.Errorf("generate iban: %w", err)
		}

		sb.WriteString(digit.String())
	}

	return sb.String(), nil
}
