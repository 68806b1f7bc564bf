package robokassa

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the Robokassa merchant API: signed payment links and
// signed operation-state queries. The gateway runs a dual-password scheme:
// password 1 signs payment links, password 2 signs status queries.
type Client struct {
	merchantLogin string
	password1     string
	password2     string
	testMode      bool
	paymentURL    string
	statusURL     string
	httpClient    *http.Client
	log           *slog.Logger
}

type Config struct {
	MerchantLogin string
	Password1     string
	Password2     string
	TestMode      bool
	PaymentURL    string
	StatusURL     string
	Timeout       time.Duration
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		merchantLogin: cfg.MerchantLogin,
		password1:     cfg.Password1,
		password2:     cfg.Password2,
		testMode:      cfg.TestMode,
		paymentURL:    cfg.PaymentURL,
		statusURL:     cfg.StatusURL,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}
}

// PaymentLink builds the redirect URL the user follows to pay.
//
// The signature base string is "{login}:{amount}:{invoiceID}:{password1}" and
// the amount MUST be rendered identically in the base string and in the OutSum
// query parameter. The account is configured for plain integer amounts; do not
// switch to a fixed-point rendering without re-verifying against the sandbox.
func (c *Client) PaymentLink(amount int, invoiceID int64, description string) string {
	outSum := strconv.Itoa(amount)
	signature := md5Hex(fmt.Sprintf("%s:%s:%d:%s", c.merchantLogin, outSum, invoiceID, c.password1))

	params := url.Values{}
	params.Set("MerchantLogin", c.merchantLogin)
	params.Set("OutSum", outSum)
	params.Set("InvId", strconv.FormatInt(invoiceID, 10))
	params.Set("Description", description)
	params.Set("SignatureValue", signature)
	params.Set("IsTest", c.isTestFlag())

	return c.paymentURL + "?" + params.Encode()
}

// LinkSignature exposes the raw link signature for a given amount and invoice.
// Kept separate from PaymentLink so the signing contract can be verified
// against the gateway's golden values.
func (c *Client) LinkSignature(amount int, invoiceID int64) string {
	return md5Hex(fmt.Sprintf("%s:%d:%d:%s", c.merchantLogin, amount, invoiceID, c.password1))
}

// StatusSignature signs the operation-state query (password 2 scheme).
func (c *Client) StatusSignature(invoiceID int64) string {
	return md5Hex(fmt.Sprintf("%s:%d:%s", c.merchantLogin, invoiceID, c.password2))
}

type stateResponse struct {
	XMLName xml.Name `xml:"OperationStateResponse"`
	Result  struct {
		Code        int    `xml:"Code"`
		Description string `xml:"Description"`
	} `xml:"Result"`
	State struct {
		Code int `xml:"Code"`
	} `xml:"State"`
}

// CheckPayment asks the gateway whether the invoice has settled.
//
// Only a parseable response with a zero top-level result code and state code
// 100 counts as settled. Transport errors, non-200 statuses, unparseable
// bodies and every other state code all come back as (false, err-or-nil):
// the caller treats all of them as "not yet confirmed".
func (c *Client) CheckPayment(ctx context.Context, invoiceID int64) (bool, error) {
	params := url.Values{}
	params.Set("MerchantLogin", c.merchantLogin)
	params.Set("InvoiceID", strconv.FormatInt(invoiceID, 10))
	params.Set("Signature", c.StatusSignature(invoiceID))
	params.Set("IsTest", c.isTestFlag())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL+"?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("query payment state: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read state response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("robokassa state query rejected", "invoice_id", invoiceID, "status", resp.StatusCode)
		return false, fmt.Errorf("state query status: %d", resp.StatusCode)
	}

	var parsed stateResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		c.log.Warn("robokassa state response unparseable", "invoice_id", invoiceID, "err", err)
		return false, fmt.Errorf("decode state response: %w", err)
	}
	if parsed.Result.Code != 0 {
		c.log.Info("robokassa state query error code", "invoice_id", invoiceID, "code", parsed.Result.Code, "description", parsed.Result.Description)
		return false, nil
	}
	if parsed.State.Code != 100 {
		c.log.Info("payment not settled yet", "invoice_id", invoiceID, "state", parsed.State.Code)
		return false, nil
	}
	return true, nil
}

func (c *Client) isTestFlag() string {
	if c.testMode {
		return "1"
	}
	return "0"
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
