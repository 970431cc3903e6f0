// Package payment issues UPI payment QR codes for confirmed orders.
package payment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/skip2/go-qrcode"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
)

type Config struct {
	VPA       string `envconfig:"PAYMENT_UPI_VPA" default:"merchant@upi"`
	PayeeName string `envconfig:"PAYMENT_PAYEE_NAME" default:"FoodBot"`
	// RequireConfirmed rejects payment codes for orders that are not Confirmed.
	RequireConfirmed bool `envconfig:"PAYMENT_REQUIRE_CONFIRMED" default:"true"`
	QRSize           int  `envconfig:"PAYMENT_QR_SIZE" default:"256"`
}

// Encoder turns a payment URI into an image data URI.
type Encoder interface {
	Encode(uri string) (string, error)
}

type QREncoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func (e QREncoder) Encode(uri string) (string, error) {
	size := e.Size
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(uri, e.Level, size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

type Payment struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
	URI     string  `json:"upi_uri"`
	QRCode  string  `json:"qr_code"`
}

type Issuer struct {
	orders  store.Repository[domain.Order]
	encoder Encoder
	cfg     Config
}

func NewIssuer(orders store.Repository[domain.Order], encoder Encoder, cfg Config) *Issuer {
	if encoder == nil {
		encoder = QREncoder{Size: cfg.QRSize, Level: qrcode.Medium}
	}
	return &Issuer{orders: orders, encoder: encoder, cfg: cfg}
}

// Issue builds the UPI payment code for orderID.
func (i *Issuer) Issue(ctx context.Context, orderID string) (*Payment, error) {
	order, err := i.orders.FindOne(ctx, store.Filter{"order_id": orderID})
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return nil, errx.NotFound("Order %s not found", orderID)
		}
		return nil, err
	}

	status := order.OrderDetails.Status
	if i.cfg.RequireConfirmed && status != domain.OrderConfirmed {
		return nil, errx.OrderNotConfirmed(orderID, string(status))
	}

	uri := i.URI(order)
	code, err := i.encoder.Encode(uri)
	if err != nil {
		return nil, err
	}

	logx.Info().Str("order_id", orderID).Float64("amount", order.OrderDetails.TotalAmount).Msg("payment qr issued")
	return &Payment{
		OrderID: orderID,
		Amount:  order.OrderDetails.TotalAmount,
		URI:     uri,
		QRCode:  code,
	}, nil
}

// URI renders the UPI deep link for the order total.
func (i *Issuer) URI(order *domain.Order) string {
	q := url.Values{}
	q.Set("pa", i.cfg.VPA)
	q.Set("pn", i.cfg.PayeeName)
	q.Set("am", strconv.FormatFloat(order.OrderDetails.TotalAmount, 'f', 2, 64))
	q.Set("tr", order.OrderID)
	q.Set("cu", "INR")
	return "upi://pay?" + q.Encode()
}
