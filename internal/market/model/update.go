package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Merge rules for inbound field updates. Two fields get special handling and
// the rules are named here rather than scattered through the handlers:
//
//   - ExecutionInstruction is sticky: the value set on the first message wins
//     and later messages can never change it.
//   - StopPrice is protected while the order carries a trailing offset: the
//     trailing sweep owns the stop price and inbound amends must not clobber it.

// OrderUpdate is the allow-listed set of fields an amend (or enriching inbound
// message) may touch. Nil fields are not applied.
type OrderUpdate struct {
	ClientOrderID        *string
	Quantity             *decimal.Decimal
	LimitPrice           *decimal.Decimal
	StopPrice            *decimal.Decimal
	ExpireTime           *string
	TimeInForce          *TimeInForce
	ExecutionInstruction *int
}

// Apply merges the update into the order under the named rules and reports
// whether any field changed.
func (u OrderUpdate) Apply(o *Order) bool {
	changed := false
	if u.ClientOrderID != nil && *u.ClientOrderID != o.ClientOrderID {
		o.ClientOrderID = *u.ClientOrderID
		changed = true
	}
	if u.Quantity != nil && !u.Quantity.Equal(o.Quantity) {
		o.Quantity = *u.Quantity
		o.LeavesQuantity = o.Quantity.Sub(o.CumQuantity)
		if o.LeavesQuantity.IsNegative() {
			o.LeavesQuantity = decimal.Zero
		}
		changed = true
	}
	if u.LimitPrice != nil && !u.LimitPrice.Equal(o.LimitPrice) {
		o.LimitPrice = *u.LimitPrice
		changed = true
	}
	// StopPrice rule: protected while trailing, the sweep recomputes it.
	if u.StopPrice != nil && !o.TrailingOffset.IsPositive() && !u.StopPrice.Equal(o.StopPrice) {
		o.StopPrice = *u.StopPrice
		changed = true
	}
	if u.ExpireTime != nil && *u.ExpireTime != o.ExpireTime {
		o.ExpireTime = *u.ExpireTime
		changed = true
	}
	if u.TimeInForce != nil && *u.TimeInForce != o.TimeInForce {
		o.TimeInForce = *u.TimeInForce
		changed = true
	}
	// ExecutionInstruction rule: first write wins.
	if u.ExecutionInstruction != nil && o.ExecutionInstruction == nil {
		v := *u.ExecutionInstruction
		o.ExecutionInstruction = &v
		changed = true
	}
	if changed {
		o.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// FromNewOrder builds a working order from an inbound new-order message.
// Container defaults follow the order type when the message leaves it unset.
func FromNewOrder(account, broker string, m *NewOrderMessage) *Order {
	container := m.Container
	if container == 0 {
		switch m.Type {
		case OrderTypeStop, OrderTypeStopLimit, OrderTypeMarketIfTouch:
			container = ContainerStopPending
		case OrderTypePegged, OrderTypePeggedLimit:
			container = ContainerPegged
		default:
			container = ContainerMain
		}
	}
	now := time.Now().UTC()
	o := &Order{
		ID:               uuid.New(),
		ClientOrderID:    m.ClientOrderID,
		SecurityID:       m.SecurityID,
		Account:          account,
		Broker:           broker,
		Side:             m.Side,
		Type:             m.Type,
		SubType:          m.SubType,
		TimeInForce:      m.TimeInForce,
		Container:        container,
		Quantity:         m.Quantity,
		MinimumQuantity:  m.MinimumQuantity,
		DisplayQuantity:  m.DisplayQuantity,
		LimitPrice:       m.LimitPrice,
		StopPrice:        m.StopPrice,
		TrailingOffset:   m.TrailingOffset,
		ExpireTime:       m.ExpireTime,
		Capacity:         m.Capacity,
		TraderMnemonic:   m.TraderMnemonic,
		ClearingAccount:  m.ClearingAccount,
		Status:           StatusCreate,
		LeavesQuantity:   m.Quantity,
		CumQuantity:      decimal.Zero,
		ExecutedPrice:    decimal.Zero,
		ExecutedQuantity: decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if m.ExecutionInstruction != nil {
		v := *m.ExecutionInstruction
		o.ExecutionInstruction = &v
	}
	return o
}
