package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/pety02/hotelreservation/internal/booking"
	"github.com/pety02/hotelreservation/internal/logger"
)

const storeCards = "debitCards"

type cardRepository interface {
	ReadAll(ctx context.Context) ([]booking.DebitCard, error)
	MergeAndSave(ctx context.Context, records []booking.DebitCard) error
}

// Processor is the only place money moves: from a debit card to a hotel's incomes.
type Processor struct {
	mu    sync.Mutex
	l     *logger.Logger
	cards cardRepository
}

func New(l *logger.Logger, cards cardRepository) *Processor {
	//nolint:exhaustruct
	return &Processor{
		l:     l,
		cards: cards,
	}
}

// MakeTransaction debits amount from the card and credits it to hotel.Incomes. The card is
// persisted first; the hotel is only changed in memory once that write succeeded, so on
// error neither side has moved.
func (p *Processor) MakeTransaction(
	ctx context.Context,
	hotel *booking.Hotel,
	cardID int,
	amount float64,
) (*booking.DebitCard, error) {
	if err := validateAmount(hotel, amount); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	card, err := p.card(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if card.Balance < amount {
		return nil, &booking.InsufficientFundsError{
			CardID:   card.ID,
			Balance:  card.Balance,
			Required: amount,
		}
	}

	card.Balance = booking.RoundMoney(card.Balance - amount)

	if err = p.cards.MergeAndSave(ctx, []booking.DebitCard{card}); err != nil {
		return nil, &booking.PersistenceError{Store: storeCards, Err: err}
	}

	hotel.AddIncome(amount)

	p.l.LogInfo("Card %v paid %.2f to hotel %v, balance %.2f", card.ID, amount, hotel.ID, card.Balance)

	return &card, nil
}

// Refund reverses a transaction made with MakeTransaction.
func (p *Processor) Refund(
	ctx context.Context,
	hotel *booking.Hotel,
	cardID int,
	amount float64,
) (*booking.DebitCard, error) {
	if err := validateAmount(hotel, amount); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	card, err := p.card(ctx, cardID)
	if err != nil {
		return nil, err
	}

	card.Balance = booking.RoundMoney(card.Balance + amount)

	if err = p.cards.MergeAndSave(ctx, []booking.DebitCard{card}); err != nil {
		return nil, &booking.PersistenceError{Store: storeCards, Err: err}
	}

	hotel.AddIncome(-amount)

	p.l.LogInfo("Card %v refunded %.2f by hotel %v, balance %.2f", card.ID, amount, hotel.ID, card.Balance)

	return &card, nil
}

// Balance returns the stored balance of a card.
func (p *Processor) Balance(ctx context.Context, cardID int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	card, err := p.card(ctx, cardID)
	if err != nil {
		return 0, err
	}

	return card.Balance, nil
}

func (p *Processor) card(ctx context.Context, cardID int) (booking.DebitCard, error) {
	cards, err := p.cards.ReadAll(ctx)
	if err != nil {
		return booking.DebitCard{}, &booking.PersistenceError{Store: storeCards, Err: err}
	}

	for _, card := range cards {
		if card.ID == cardID {
			return card, nil
		}
	}

	return booking.DebitCard{}, booking.NewNotFoundError("debit card", cardID)
}

func validateAmount(hotel *booking.Hotel, amount float64) error {
	inputErr := booking.NewInputError()

	if hotel == nil {
		inputErr.AddError("hotel", "provide hotel")
	}

	if amount <= 0 {
		inputErr.AddError("amount", fmt.Sprintf("amount must be positive, got %.2f", amount))
	}

	return inputErr.OrNil()
}
