package withdrawal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationValidate(t *testing.T) {
	bank := &BankTransfer{BankName: "First Bank", AccountName: "Ada Obi", AccountNumber: "0123456789"}
	wallet := &CryptoWallet{Address: "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", Network: "TRC20"}

	cases := []struct {
		name   string
		method Method
		dest   Destination
		want   error
	}{
		{"bank ok", MethodBankTransfer, Destination{Bank: bank}, nil},
		{"wallet ok", MethodCryptoWallet, Destination{Wallet: wallet}, nil},
		{"bank method with wallet", MethodBankTransfer, Destination{Wallet: wallet}, ErrWrongVariant},
		{"wallet method with bank", MethodCryptoWallet, Destination{Bank: bank}, ErrWrongVariant},
		{"both populated", MethodBankTransfer, Destination{Bank: bank, Wallet: wallet}, ErrWrongVariant},
		{"unknown method", Method("cash"), Destination{Bank: bank}, ErrUnknownMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dest.Validate(tc.method)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDestinationValidateFields(t *testing.T) {
	err := Destination{Bank: &BankTransfer{BankName: "First Bank"}}.Validate(MethodBankTransfer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accountname failed required")

	err = Destination{Wallet: &CryptoWallet{Address: "short"}}.Validate(MethodCryptoWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address failed min")
}

func TestQuote(t *testing.T) {
	fee, net := Quote(decimal.NewFromInt(50000), decimal.RequireFromString("0.05"))
	assert.True(t, fee.Equal(decimal.NewFromInt(2500)), "fee %s", fee)
	assert.True(t, net.Equal(decimal.NewFromInt(47500)), "net %s", net)

	fee, net = Quote(decimal.RequireFromString("10.01"), decimal.RequireFromString("0.05"))
	assert.Equal(t, "0.5", fee.String())
	assert.Equal(t, "9.51", net.String())
}
