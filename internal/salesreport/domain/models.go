package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Selectable chart ranges.
var RangeOptions = []int{7, 30, 90}

const DefaultRangeDays = 30

type Service interface {
	Report(ctx context.Context, req ReportRequest) (*Report, error)
	// ExportPayments writes the range's payments as CSV (date, method, amount).
	ExportPayments(ctx context.Context, req ReportRequest, w io.Writer) error
}

type ReportRequest struct {
	RestaurantID snowflake.ID
	RangeDays    int
}

// Window totals payments and counts orders created in a trailing period.
type Window struct {
	Sales    decimal.Decimal `json:"sales"`
	Payments int             `json:"payments"`
	Orders   int             `json:"orders"`
}

type MethodTotals struct {
	Cash decimal.Decimal `json:"cash"`
	Card decimal.Decimal `json:"card"`
}

type DailyPoint struct {
	Date   string          `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Orders int             `json:"orders"`
}

type HourCount struct {
	Hour   int `json:"hour"`
	Orders int `json:"orders"`
}

type Report struct {
	RangeDays     int             `json:"range_days"`
	From          time.Time       `json:"from"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Today         Window          `json:"today"`
	Week          Window          `json:"week"`
	Month         Window          `json:"month"`
	Range         Window          `json:"range"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
	ByMethod      MethodTotals    `json:"by_method"`
	Daily         []DailyPoint    `json:"daily"`
	PeakHours     []HourCount     `json:"peak_hours"`
}

var (
	ErrInvalidRestaurant = errors.New("invalid_restaurant")
	ErrInvalidRange      = errors.New("invalid_range_days")
)

// ParseRange accepts 0 (default) or one of RangeOptions.
func ParseRange(days int) (int, error) {
	if days == 0 {
		return DefaultRangeDays, nil
	}
	for _, option := range RangeOptions {
		if days == option {
			return days, nil
		}
	}
	return 0, ErrInvalidRange
}
