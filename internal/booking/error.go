package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNextID             = errors.New("get next id from generator")
	ErrLogic              = errors.New("logic error")
	ErrRecordNotFound     = errors.New("record not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyCancelled   = errors.New("reservation already cancelled")
	ErrWindowUnavailable  = errors.New("window is not available")
	ErrRoomBooked         = errors.New("room is booked")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AvailabilityError struct {
	errors []string
}

func NewAvailabilityError() *AvailabilityError {
	//nolint:exhaustruct
	return &AvailabilityError{}
}

func IsAvailabilityError(err error) *AvailabilityError {
	if err == nil {
		return nil
	}

	var availabilityError *AvailabilityError

	if errors.As(err, &availabilityError) {
		return availabilityError
	}

	return nil
}

func (e *AvailabilityError) AddUnavailableRoom(hotelID, roomID int, window Window) {
	e.errors = append(e.errors, fmt.Sprintf("room '%v' is unavailable in hotel '%v' for %v", roomID, hotelID, window))
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%+v", e.errors)
}

func (e *AvailabilityError) Fields() []string {
	return e.errors
}

func (e *AvailabilityError) UnavailableRoomsCount() int {
	return len(e.errors)
}

type InputError struct {
	fields map[string][]string
}

func NewInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) FieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) AddError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

// OrNil returns ie when at least one field failed.
func (ie *InputError) OrNil() error {
	if ie.FieldsCount() > 0 {
		return ie
	}

	return nil
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}

type NotFoundError struct {
	Entity string
	ID     int
}

func NewNotFoundError(entity string, id int) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Entity, e.ID, ErrRecordNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

type InsufficientFundsError struct {
	CardID   int
	Balance  float64
	Required float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("card %d has %.2f, %.2f required: %v", e.CardID, e.Balance, e.Required, ErrInsufficientFunds)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// PersistenceError means a store could not be read or written. The operation was aborted
// and everything it had already written was compensated.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InconsistencyError means an operation failed on a store and could not undo all of what it
// had written. Written lists the stores still holding the operation's writes; they disagree
// with the others until repaired.
type InconsistencyError struct {
	Operation string
	Written   []string
	Failed    string
	Err       error
}

func IsInconsistencyError(err error) *InconsistencyError {
	if err == nil {
		return nil
	}

	var inconsistencyError *InconsistencyError

	if errors.As(err, &inconsistencyError) {
		return inconsistencyError
	}

	return nil
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf(
		"%s left stores inconsistent: repair [%s], failed on %s: %v",
		e.Operation, strings.Join(e.Written, ", "), e.Failed, e.Err,
	)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}
