// Package gateway builds signed payment redirects and verifies gateway
// callbacks using the VNPay query-string contract (HMAC-SHA512, vnp_ params,
// amounts in VND x 100).
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	version      = "2.1.0"
	commandPay   = "pay"
	currencyCode = "VND"
	orderType    = "other"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"

	timeLayout = "20060102150405"

	// ResponseSuccess is the code the gateway reports for an approved charge.
	ResponseSuccess = "00"
)

var ErrSignatureMismatch = errors.New("gateway: signature mismatch")

// vnpay timestamps are always Indochina time
var gatewayZone = time.FixedZone("ICT", 7*60*60)

// Config gateway merchant settings
type Config struct {
	TmnCode       string
	HashSecret    string
	PayURL        string
	ReturnURL     string
	Locale        string
	ExpireMinutes int
}

// PaymentRequest one payment intent to be paid by the shop
type PaymentRequest struct {
	TxnRef    string
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

// Callback verified gateway notification
type Callback struct {
	TxnRef            string
	Amount            decimal.Decimal
	ResponseCode      string
	TransactionStatus string
	GatewayTxnNo      string
	BankCode          string
	PayDate           string
}

// Succeeded reports whether the gateway charged the shop.
func (c *Callback) Succeeded() bool {
	return c.ResponseCode == ResponseSuccess && c.TransactionStatus == ResponseSuccess
}

// Client signs and verifies gateway messages.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.ExpireMinutes <= 0 {
		cfg.ExpireMinutes = 15
	}
	return &Client{cfg: cfg}
}

// BuildPaymentURL returns the signed redirect for a payment intent.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if req.TxnRef == "" {
		return "", errors.New("gateway: txn ref is required")
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("gateway: invalid amount %s", req.Amount.String())
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.In(gatewayZone)
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan " + req.TxnRef
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", commandPay)
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_Amount", ToMinorUnits(req.Amount))
	params.Set("vnp_CurrCode", currencyCode)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", orderType)
	params.Set("vnp_Locale", c.cfg.Locale)
	params.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", created.Format(timeLayout))
	params.Set("vnp_ExpireDate", created.Add(time.Duration(c.cfg.ExpireMinutes)*time.Minute).Format(timeLayout))

	query := canonicalQuery(params)
	return c.cfg.PayURL + "?" + query + "&" + paramSecureHash + "=" + c.sign(query), nil
}

// ParseCallback verifies the signature of a gateway notification and extracts
// its fields.
func (c *Client) ParseCallback(params url.Values) (*Callback, error) {
	got := params.Get(paramSecureHash)
	if got == "" {
		return nil, ErrSignatureMismatch
	}

	signed := url.Values{}
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") || k == paramSecureHash || k == paramSecureHashType {
			continue
		}
		if len(v) > 0 && v[0] != "" {
			signed.Set(k, v[0])
		}
	}
	want := c.sign(canonicalQuery(signed))
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return nil, ErrSignatureMismatch
	}

	amount, err := FromMinorUnits(params.Get("vnp_Amount"))
	if err != nil {
		return nil, err
	}
	return &Callback{
		TxnRef:            params.Get("vnp_TxnRef"),
		Amount:            amount,
		ResponseCode:      params.Get("vnp_ResponseCode"),
		TransactionStatus: params.Get("vnp_TransactionStatus"),
		GatewayTxnNo:      params.Get("vnp_TransactionNo"),
		BankCode:          params.Get("vnp_BankCode"),
		PayDate:           params.Get("vnp_PayDate"),
	}, nil
}

// Sign exposes the signature so simulators and tests can forge valid callbacks.
func (c *Client) Sign(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Del(paramSecureHash)
	out.Del(paramSecureHashType)
	out.Set(paramSecureHash, c.sign(canonicalQuery(out)))
	return out
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery sorted key=value pairs, both sides query-escaped
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(k)))
	}
	return sb.String()
}

// ToMinorUnits formats an amount the way the gateway expects (x100, no decimals).
func ToMinorUnits(amount decimal.Decimal) string {
	return amount.Shift(2).Round(0).StringFixed(0)
}

// FromMinorUnits parses a gateway amount back to currency units.
func FromMinorUnits(raw string) (decimal.Decimal, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gateway: invalid amount %q: %w", raw, err)
	}
	return decimal.New(n, -2), nil
}
