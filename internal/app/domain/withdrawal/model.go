package withdrawal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Status of a withdrawal request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Method selects which destination variant must be populated.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCryptoWallet Method = "crypto_wallet"
)

// BankTransfer is the payout destination for bank withdrawals.
type BankTransfer struct {
	BankName      string `json:"bank_name" validate:"required,max=128"`
	AccountName   string `json:"account_name" validate:"required,max=128"`
	AccountNumber string `json:"account_number" validate:"required,alphanum,min=4,max=34"`
}

// CryptoWallet is the payout destination for wallet withdrawals.
type CryptoWallet struct {
	Address string `json:"address" validate:"required,alphanum,min=20,max=128"`
	Network string `json:"network,omitempty" validate:"omitempty,max=32"`
}

// Destination holds exactly one populated variant.
type Destination struct {
	Bank   *BankTransfer `json:"bank,omitempty"`
	Wallet *CryptoWallet `json:"wallet,omitempty"`
}

var (
	// ErrUnknownMethod is returned for payment methods outside the known set.
	ErrUnknownMethod = errors.New("unknown withdrawal method")
	// ErrWrongVariant is returned when the populated destination does not
	// match the method, or both variants are set.
	ErrWrongVariant = errors.New("destination does not match method")
)

var validate = validator.New()

// Validate checks that the variant selected by method is the only one set and
// that its fields are well formed.
func (d Destination) Validate(method Method) error {
	if d.Bank != nil && d.Wallet != nil {
		return ErrWrongVariant
	}
	switch method {
	case MethodBankTransfer:
		if d.Bank == nil {
			return ErrWrongVariant
		}
		return describe(validate.Struct(d.Bank))
	case MethodCryptoWallet:
		if d.Wallet == nil {
			return ErrWrongVariant
		}
		return describe(validate.Struct(d.Wallet))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}

// Withdrawal is a request to pay out funds. Amount is reserved from the
// balance at creation; Fee and NetAmount are derived from the fee rate.
type Withdrawal struct {
	ID              string
	UserID          string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	NetAmount       decimal.Decimal
	Method          Method
	Destination     Destination
	Status          Status
	ProcessedBy     string
	RejectionReason string
	EntryID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// Quote computes the fee and net amount for a gross amount. The fee is
// rounded to cents, half away from zero.
func Quote(amount, feeRate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = amount.Mul(feeRate).Round(2)
	return fee, amount.Sub(fee)
}
