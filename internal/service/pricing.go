package service

import (
	"github.com/shopspring/decimal"

	"github.com/Troha7/E-store/internal/entity"
)

// ComputeTotal sums price × quantity over the line items. Prices are exact decimals, so the
// result carries no rounding drift; an empty order totals zero.
func ComputeTotal(items []entity.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func materialize(order entity.Order, items []entity.LineItem) *entity.OrderView {
	if items == nil {
		items = []entity.LineItem{}
	}
	return &entity.OrderView{
		Order:      order,
		Items:      items,
		TotalPrice: ComputeTotal(items),
	}
}
