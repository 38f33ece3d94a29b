package session

import (
	"github.com/shopspring/decimal"

	"mmconsole/internal/domain"
)

// Field identifies one editable run configuration field.
type Field string

const (
	FieldBalance   Field = "balance"
	FieldLeverage  Field = "leverage"
	FieldOrderSize Field = "order_size"
)

// Form holds the user's editable run configuration. The values are
// authoritative only while no run is active; a field is dirty from the
// moment the user edits it until the next apply succeeds, and dirty fields
// are never clobbered by polled server state.
type Form struct {
	balance   decimal.Decimal
	leverage  decimal.Decimal
	orderSize decimal.Decimal
	dirty     map[Field]bool
}

func newForm() *Form {
	return &Form{
		balance:   decimal.NewFromInt(10000),
		leverage:  decimal.NewFromInt(10),
		orderSize: decimal.NewFromInt(100),
		dirty:     make(map[Field]bool),
	}
}

func (f *Form) set(field Field, value decimal.Decimal) {
	switch field {
	case FieldBalance:
		f.balance = value
	case FieldLeverage:
		f.leverage = value
	case FieldOrderSize:
		f.orderSize = value
	default:
		return
	}
	f.dirty[field] = true
}

func (f *Form) get(field Field) decimal.Decimal {
	switch field {
	case FieldBalance:
		return f.balance
	case FieldLeverage:
		return f.leverage
	case FieldOrderSize:
		return f.orderSize
	}
	return decimal.Decimal{}
}

func (f *Form) isDirty(field Field) bool {
	return f.dirty[field]
}

// markClean is called after a successful apply; from here on polls may
// resynchronize every field again.
func (f *Form) markClean() {
	f.dirty = make(map[Field]bool)
}

// syncFrom adopts the server-reported configuration for every field the
// user is not currently editing.
func (f *Form) syncFrom(cfg domain.RunConfig) {
	if !f.dirty[FieldBalance] {
		f.balance = cfg.Balance
	}
	if !f.dirty[FieldLeverage] {
		f.leverage = cfg.Leverage
	}
	if !f.dirty[FieldOrderSize] {
		f.orderSize = cfg.OrderSize
	}
}

func (f *Form) config() domain.RunConfig {
	return domain.RunConfig{
		Balance:   f.balance,
		Leverage:  f.leverage,
		OrderSize: f.orderSize,
	}
}
