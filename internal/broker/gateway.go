// Package broker talks to the trading venue: price history, quotes, open
// positions and order routing.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SpikeSentinel/internal/model"
)

// Gateway is the broker collaborator consumed by the collector and the
// trade lifecycle manager.
type Gateway interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	FetchBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (*model.PriceSeries, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	// OpenPositions lists live positions. An empty symbol lists all of them.
	OpenPositions(ctx context.Context, symbol string) ([]model.BrokerPosition, error)
	SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
	ClosePosition(ctx context.Context, positionID string) (*model.OrderResult, error)
}

var (
	// ErrNotConnected is wrapped in a ConnectivityError when no session exists.
	ErrNotConnected = errors.New("broker session not established")
	// ErrAuthRejected means the broker refused the credentials.
	ErrAuthRejected = errors.New("broker rejected credentials")
	// ErrNoPrice means the broker has no quote for the symbol.
	ErrNoPrice = errors.New("no current price")
)

// ConnectivityError reports a lost or missing broker session.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err carries a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// New builds the gateway for mode: "paper" or "http".
func New(mode string, cfg HTTPConfig, paperBasePrice float64) (Gateway, error) {
	switch mode {
	case "paper":
		return NewPaperGateway(paperBasePrice), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, errors.New("http gateway needs a base url")
		}
		return NewHTTPGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unknown broker mode %q", mode)
	}
}
