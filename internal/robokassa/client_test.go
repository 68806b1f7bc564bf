package robokassa

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, statusURL string) *Client {
	t.Helper()
	return NewClient(Config{
		MerchantLogin: "demo",
		Password1:     "password_1",
		Password2:     "password_2",
		PaymentURL:    "https://auth.robokassa.ru/Merchant/Index.aspx",
		StatusURL:     statusURL,
	}, testLogger())
}

func TestLinkSignatureGolden(t *testing.T) {
	c := newTestClient(t, "")
	// md5("demo:50:123456:password_1")
	assert.Equal(t, "1d562f7290c80d0e45ce372c6eca3685", c.LinkSignature(50, 123456))
}

func TestStatusSignatureGolden(t *testing.T) {
	c := newTestClient(t, "")
	// md5("demo:123456:password_2")
	assert.Equal(t, "b3e698fdce45c0b188fec8fb0a3b9d9e", c.StatusSignature(123456))
}

func TestLinkSignatureOtherCredentials(t *testing.T) {
	c := NewClient(Config{MerchantLogin: "shop", Password1: "pw1", Password2: "pw2"}, testLogger())
	// md5("shop:799:42:pw1")
	assert.Equal(t, "d40bac7c9e8a549c5ff62d9aa68fe38d", c.LinkSignature(799, 42))
}

func TestSignaturesDeterministic(t *testing.T) {
	c := newTestClient(t, "")
	assert.Equal(t, c.LinkSignature(299, 7), c.LinkSignature(299, 7))
	assert.Equal(t, c.StatusSignature(7), c.StatusSignature(7))
	assert.NotEqual(t, c.LinkSignature(299, 7), c.LinkSignature(300, 7))
	assert.NotEqual(t, c.LinkSignature(299, 7), c.StatusSignature(7))
}

func TestPaymentLinkParams(t *testing.T) {
	c := newTestClient(t, "")
	link := c.PaymentLink(50, 123456, "Подписка")

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "demo", q.Get("MerchantLogin"))
	assert.Equal(t, "50", q.Get("OutSum"))
	assert.Equal(t, "123456", q.Get("InvId"))
	assert.Equal(t, "Подписка", q.Get("Description"))
	assert.Equal(t, "0", q.Get("IsTest"))
	// The link signature must match the "{login}:{amount}:{invid}:{pw1}"
	// base string with the same integer amount rendering.
	assert.Equal(t, c.LinkSignature(50, 123456), q.Get("SignatureValue"))
}

func TestPaymentLinkTestMode(t *testing.T) {
	c := NewClient(Config{MerchantLogin: "demo", Password1: "p1", Password2: "p2", TestMode: true}, testLogger())
	link := c.PaymentLink(299, 1, "x")
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "1", parsed.Query().Get("IsTest"))
}

func TestCheckPaymentSettled(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<OperationStateResponse xmlns="http://merchant.roboxchange.com/WebService/">
  <Result><Code>0</Code></Result>
  <State><Code>100</Code><RequestDate>2024-01-01T00:00:00</RequestDate></State>
</OperationStateResponse>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	settled, err := c.CheckPayment(context.Background(), 123456)
	require.NoError(t, err)
	assert.True(t, settled)

	assert.Equal(t, "demo", gotQuery.Get("MerchantLogin"))
	assert.Equal(t, "123456", gotQuery.Get("InvoiceID"))
	assert.Equal(t, c.StatusSignature(123456), gotQuery.Get("Signature"))
}

func TestCheckPaymentNotSettled(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "state not final",
			body: `<OperationStateResponse><Result><Code>0</Code></Result><State><Code>50</Code></State></OperationStateResponse>`,
		},
		{
			name: "result error code",
			body: `<OperationStateResponse><Result><Code>3</Code><Description>invoice not found</Description></Result><State><Code>100</Code></State></OperationStateResponse>`,
		},
		{
			name:    "malformed body",
			body:    `not xml at all`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			settled, err := c.CheckPayment(context.Background(), 1)
			assert.False(t, settled)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckPaymentHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	settled, err := c.CheckPayment(context.Background(), 1)
	assert.False(t, settled)
	assert.Error(t, err)
}
