package gateway

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(Config{
		TmnCode:    "LOGI0001",
		HashSecret: "SECRETKEY123",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://admin.example.com/settlements/return",
	})
}

func callbackParams(txnRef, amount, code string) url.Values {
	v := url.Values{}
	v.Set("vnp_TmnCode", "LOGI0001")
	v.Set("vnp_TxnRef", txnRef)
	v.Set("vnp_Amount", amount)
	v.Set("vnp_ResponseCode", code)
	v.Set("vnp_TransactionStatus", code)
	v.Set("vnp_TransactionNo", "14012345")
	v.Set("vnp_BankCode", "NCB")
	v.Set("vnp_OrderInfo", "Thanh toan doi soat STL-202603-0001")
	v.Set("vnp_PayDate", "20260301101500")
	return v
}

func TestBuildPaymentURL(t *testing.T) {
	c := testClient()
	created := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	raw, err := c.BuildPaymentURL(PaymentRequest{
		TxnRef:    "STL1-abc",
		Amount:    decimal.NewFromInt(200000),
		ClientIP:  "10.0.0.8",
		CreatedAt: created,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "20000000", q.Get("vnp_Amount"))
	assert.Equal(t, "STL1-abc", q.Get("vnp_TxnRef"))
	assert.Equal(t, "20260301100000", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20260301101500", q.Get("vnp_ExpireDate"))
	assert.Len(t, q.Get("vnp_SecureHash"), 128)

	// the redirect itself must verify as if the gateway echoed it back
	_, err = c.ParseCallback(q)
	require.NoError(t, err)
}

func TestBuildPaymentURL_Rejects(t *testing.T) {
	c := testClient()
	_, err := c.BuildPaymentURL(PaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
	_, err = c.BuildPaymentURL(PaymentRequest{TxnRef: "x", Amount: decimal.Zero})
	assert.Error(t, err)
}

func TestParseCallback(t *testing.T) {
	c := testClient()
	signed := c.Sign(callbackParams("STL1-abc", "20000000", "00"))

	cb, err := c.ParseCallback(signed)
	require.NoError(t, err)
	assert.Equal(t, "STL1-abc", cb.TxnRef)
	assert.True(t, decimal.NewFromInt(200000).Equal(cb.Amount))
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "14012345", cb.GatewayTxnNo)
	assert.Equal(t, "NCB", cb.BankCode)

	declined := c.Sign(callbackParams("STL1-abc", "20000000", "24"))
	cb, err = c.ParseCallback(declined)
	require.NoError(t, err)
	assert.False(t, cb.Succeeded())
}

func TestParseCallback_SignatureMismatch(t *testing.T) {
	c := testClient()
	signed := c.Sign(callbackParams("STL1-abc", "20000000", "00"))

	tampered := url.Values{}
	for k, v := range signed {
		tampered[k] = v
	}
	tampered.Set("vnp_Amount", "90000000")
	_, err := c.ParseCallback(tampered)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	unsigned := callbackParams("STL1-abc", "20000000", "00")
	_, err = c.ParseCallback(unsigned)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	other := NewClient(Config{HashSecret: "another"})
	_, err = other.ParseCallback(signed)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, "15050", ToMinorUnits(decimal.RequireFromString("150.50")))
	v, err := FromMinorUnits("15050")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.5").Equal(v))
	_, err = FromMinorUnits("abc")
	assert.Error(t, err)
}
