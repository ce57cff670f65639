package transfers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

// TransferRequest moves money from the holder's account to another account.
type TransferRequest struct {
	UserID              uuid.UUID             `json:"user_id" validate:"required"`
	FromAccountID       uuid.UUID             `json:"from_account_id" validate:"required"`
	ToAccountID         uuid.UUID             `json:"to_account_id" validate:"required"`
	Amount              decimal.Decimal       `json:"amount" validate:"money"`
	Type                enums.TransactionType `json:"type" validate:"omitempty,oneof=transfer remittance bill_payment"`
	CounterpartyName    string                `json:"counterparty_name" validate:"omitempty,max=200"`
	CounterpartyCountry string                `json:"counterparty_country" validate:"omitempty,iso3166_1_alpha2"`
	IPAddress           string                `json:"ip_address" validate:"omitempty,ip"`
	Note                string                `json:"note" validate:"omitempty,max=500"`
}

// CashRequest moves money between the holder's account and the outside world.
type CashRequest struct {
	UserID    uuid.UUID       `json:"user_id" validate:"required"`
	AccountID uuid.UUID       `json:"account_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"money"`
	Channel   string          `json:"channel" validate:"omitempty,max=64"`
	IPAddress string          `json:"ip_address" validate:"omitempty,ip"`
}

// ScheduleRequest queues a transfer for ExecuteAt.
type ScheduleRequest struct {
	TransferRequest
	ExecuteAt time.Time `json:"execute_at" validate:"required"`
}

// ReverseRequest asks for a refund of a completed transfer.
type ReverseRequest struct {
	Reference   string     `json:"reference" validate:"required,max=64"`
	Reason      string     `json:"reason" validate:"required,max=500"`
	ActorUserID *uuid.UUID `json:"actor_user_id"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("money", validMoney); err != nil {
		panic(err)
	}
	return v
}

// validMoney accepts strictly positive amounts with at most two decimals.
func validMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Truncate(2))
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "money":
		return "must be a positive amount with at most two decimals"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "iso3166_1_alpha2":
		return "must be an ISO 3166 alpha-2 country code"
	case "ip":
		return "must be an IP address"
	}
	return "is invalid"
}

func (r *TransferRequest) normalize() {
	r.CounterpartyName = strings.TrimSpace(r.CounterpartyName)
	r.CounterpartyCountry = strings.ToUpper(strings.TrimSpace(r.CounterpartyCountry))
	r.IPAddress = strings.TrimSpace(r.IPAddress)
	r.Note = strings.TrimSpace(r.Note)
	if r.Type == "" {
		r.Type = enums.TransactionTypeTransfer
	}
}
