package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/pricing"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
)

// Roll paper width in millimetres.
const ticketWidth = 80

type BillData struct {
	RestaurantName string
	TableNumber    string
	SessionID      string
	OpenedAt       time.Time
	PrintedAt      time.Time
	Items          []BillItem
	Payments       []BillPayment
	Total          decimal.Decimal
	Paid           decimal.Decimal
	Remaining      decimal.Decimal
}

type BillItem struct {
	Description string
	Details     []string
	Qty         int
	Amount      decimal.Decimal
}

type BillPayment struct {
	Method string
	Amount decimal.Decimal
}

// NewBillData flattens a session aggregate into ticket rows. Cancelled orders are left off.
func NewBillData(restaurantName string, agg *sessiondomain.Aggregate, printedAt time.Time) BillData {
	data := BillData{
		RestaurantName: restaurantName,
		TableNumber:    agg.Session.TableNumber,
		SessionID:      agg.Session.ID.String(),
		OpenedAt:       agg.Session.OpenedAt,
		PrintedAt:      printedAt,
		Total:          agg.Total,
		Paid:           agg.PaidTotal,
		Remaining:      agg.Remaining,
	}
	for _, o := range agg.Orders {
		if o.Status == orderdomain.StatusCancelled {
			continue
		}
		for _, line := range o.Lines {
			item := BillItem{
				Description: line.ProductName,
				Qty:         line.Quantity,
				Amount:      line.LineTotal,
			}
			for _, m := range line.Modifiers {
				switch pricing.ModifierKind(m.Kind) {
				case pricing.ModifierRemove:
					item.Details = append(item.Details, "sin "+m.Label)
				default:
					item.Details = append(item.Details, fmt.Sprintf("+ %s %s", m.Label, m.Price.StringFixed(2)))
				}
			}
			if line.Note != nil && *line.Note != "" {
				item.Details = append(item.Details, *line.Note)
			}
			data.Items = append(data.Items, item)
		}
	}
	for _, p := range agg.Payments {
		data.Payments = append(data.Payments, BillPayment{Method: p.Method, Amount: p.Amount})
	}
	return data
}

func (p *PDFProvider) GenerateBill(ctx context.Context, data BillData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithDimensions(ticketWidth, 297).
		WithLeftMargin(4).
		WithRightMargin(4).
		WithTopMargin(6).
		Build()
	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, data.RestaurantName, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Center}),
	)
	m.AddRow(12,
		col.New(12).Add(
			text.New("Mesa "+data.TableNumber, props.Text{Size: 9, Style: fontstyle.Bold}),
			text.New("Abierta: "+data.OpenedAt.Format("2006-01-02 15:04"), props.Text{Size: 7, Top: 4}),
			text.New("Impreso: "+data.PrintedAt.Format("2006-01-02 15:04"), props.Text{Size: 7, Top: 7}),
		),
	)

	m.AddRow(6,
		text.NewCol(2, "Cant", props.Text{Size: 7, Style: fontstyle.Bold}),
		text.NewCol(7, "Producto", props.Text{Size: 7, Style: fontstyle.Bold}),
		text.NewCol(3, "Importe", props.Text{Size: 7, Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, item := range data.Items {
		m.AddRow(5,
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 7}),
			text.NewCol(7, item.Description, props.Text{Size: 7}),
			text.NewCol(3, item.Amount.StringFixed(2), props.Text{Size: 7, Align: align.Right}),
		)
		for _, detail := range item.Details {
			m.AddRow(4,
				col.New(2),
				text.NewCol(10, detail, props.Text{Size: 6, Style: fontstyle.Italic}),
			)
		}
	}

	m.AddRow(4)
	addTotalRow(m, "Total", data.Total, true)
	for _, payment := range data.Payments {
		addTotalRow(m, "Pago "+payment.Method, payment.Amount, false)
	}
	if len(data.Payments) > 0 {
		addTotalRow(m, "Pagado", data.Paid, false)
	}
	addTotalRow(m, "Pendiente", data.Remaining, true)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func addTotalRow(m core.Maroto, label string, amount decimal.Decimal, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(5,
		col.New(6),
		text.NewCol(3, label, props.Text{Size: 7, Style: style}),
		text.NewCol(3, amount.StringFixed(2), props.Text{Size: 7, Style: style, Align: align.Right}),
	)
}
