package service

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/salesreport/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dayLayout    = "2006-01-02"
	peakHourSize = 5
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Payments paymentdomain.Repository
	Orders   orderdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	loc      *time.Location
	payments paymentdomain.Repository
	orders   orderdomain.Repository
}

func NewService(p Params) domain.Service {
	log := p.Log.Named("salesreport.service")
	loc, err := time.LoadLocation(p.Config.Timezone)
	if err != nil || p.Config.Timezone == "" {
		if p.Config.Timezone != "" {
			log.Warn("unknown report timezone; using UTC", zap.String("timezone", p.Config.Timezone))
		}
		loc = time.UTC
	}
	return &Service{
		db:       p.DB,
		log:      log,
		clock:    p.Clock,
		loc:      loc,
		payments: p.Payments,
		orders:   p.Orders,
	}
}

type dataset struct {
	now      time.Time
	today    time.Time
	from     time.Time
	days     int
	payments []paymentdomain.Payment
	orders   []orderdomain.Order
}

func (s *Service) load(ctx context.Context, req domain.ReportRequest) (*dataset, error) {
	if req.RestaurantID == 0 {
		return nil, domain.ErrInvalidRestaurant
	}
	days, err := domain.ParseRange(req.RangeDays)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(s.loc)
	today := startOfDay(now)
	// The trailing month is always reported, so fetch at least 30 days.
	fetchFrom := today.AddDate(0, 0, -(max(days, 30) - 1))
	to := today.AddDate(0, 0, 1)

	payments, err := s.payments.ListBetween(ctx, s.db, req.RestaurantID, fetchFrom.UTC(), to.UTC())
	if err != nil {
		return nil, db.Classify(err)
	}
	orders, err := s.orders.ListCreatedBetween(ctx, s.db, req.RestaurantID, fetchFrom.UTC(), to.UTC())
	if err != nil {
		return nil, db.Classify(err)
	}
	return &dataset{
		now:      now,
		today:    today,
		from:     today.AddDate(0, 0, -(days - 1)),
		days:     days,
		payments: payments,
		orders:   orders,
	}, nil
}

func (s *Service) Report(ctx context.Context, req domain.ReportRequest) (*domain.Report, error) {
	data, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		RangeDays:     data.days,
		From:          data.from,
		GeneratedAt:   data.now,
		Today:         s.window(data, data.today),
		Week:          s.window(data, data.today.AddDate(0, 0, -6)),
		Month:         s.window(data, data.today.AddDate(0, 0, -29)),
		Range:         s.window(data, data.from),
		AverageTicket: decimal.Zero,
		ByMethod:      domain.MethodTotals{Cash: decimal.Zero, Card: decimal.Zero},
	}
	if report.Range.Payments > 0 {
		report.AverageTicket = report.Range.Sales.Div(decimal.NewFromInt(int64(report.Range.Payments))).Round(2)
	}

	daily := make([]domain.DailyPoint, data.days)
	index := make(map[string]int, data.days)
	for i := range daily {
		key := data.from.AddDate(0, 0, i).Format(dayLayout)
		daily[i] = domain.DailyPoint{Date: key, Sales: decimal.Zero}
		index[key] = i
	}

	for _, p := range data.payments {
		at := p.CreatedAt.In(s.loc)
		if at.Before(data.from) {
			continue
		}
		if p.Method == paymentdomain.MethodCard {
			report.ByMethod.Card = report.ByMethod.Card.Add(p.Amount)
		} else {
			report.ByMethod.Cash = report.ByMethod.Cash.Add(p.Amount)
		}
		if i, ok := index[at.Format(dayLayout)]; ok {
			daily[i].Sales = daily[i].Sales.Add(p.Amount)
		}
	}

	hours := map[int]int{}
	for _, o := range data.orders {
		at := o.CreatedAt.In(s.loc)
		if at.Before(data.from) {
			continue
		}
		hours[at.Hour()]++
		if i, ok := index[at.Format(dayLayout)]; ok {
			daily[i].Orders++
		}
	}
	report.Daily = daily
	report.PeakHours = peakHours(hours)
	return report, nil
}

func (s *Service) window(data *dataset, from time.Time) domain.Window {
	w := domain.Window{Sales: decimal.Zero}
	for _, p := range data.payments {
		if !p.CreatedAt.In(s.loc).Before(from) {
			w.Sales = w.Sales.Add(p.Amount)
			w.Payments++
		}
	}
	for _, o := range data.orders {
		if !o.CreatedAt.In(s.loc).Before(from) {
			w.Orders++
		}
	}
	return w
}

func (s *Service) ExportPayments(ctx context.Context, req domain.ReportRequest, w io.Writer) error {
	data, err := s.load(ctx, req)
	if err != nil {
		return err
	}

	out := csv.NewWriter(w)
	if err := out.Write([]string{"date", "method", "amount"}); err != nil {
		return err
	}
	for _, p := range data.payments {
		at := p.CreatedAt.In(s.loc)
		if at.Before(data.from) {
			continue
		}
		if err := out.Write([]string{at.Format(time.RFC3339), string(p.Method), p.Amount.StringFixed(2)}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func peakHours(counts map[int]int) []domain.HourCount {
	result := make([]domain.HourCount, 0, len(counts))
	for hour, n := range counts {
		result = append(result, domain.HourCount{Hour: hour, Orders: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Orders != result[j].Orders {
			return result[i].Orders > result[j].Orders
		}
		return result[i].Hour < result[j].Hour
	})
	if len(result) > peakHourSize {
		result = result[:peakHourSize]
	}
	return result
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
