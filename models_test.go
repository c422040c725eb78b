package dalcore

import (
	"database/sql"
	"time"

	"github.com/kent-id/dalcore/types"
	"github.com/shopspring/decimal"
)

type address struct {
	City    string
	Country string `dal_default:"NL"`
}

type customer struct {
	ID      int64 `dal:"customer_id"`
	Name    string
	Email   *string
	Balance decimal.Decimal
	Joined  time.Time
	Address *address
	Notes   string `dal:"-"`
}

type auditInfo struct {
	CreatedBy string `dal:"created_by"`
}

type embeddingModel struct {
	auditInfo
	ID int
}

type status string

type scannerModel struct {
	Nick   sql.NullString
	Status status
	Score  float32
	Any    any
}

type initModel struct {
	ID    int
	Label string
}

func (m *initModel) Init() {
	m.Label = "unset"
}

type annotatedModel struct {
	ID     int
	Region string
	Rank   *int
}

func (annotatedModel) DALAnnotations() map[string]Annotation {
	return map[string]Annotation{
		"Region": {Name: "region_code", Default: "EU"},
		"Rank":   {Default: 7},
	}
}

type badAnnotatedModel struct {
	ID int
}

func (badAnnotatedModel) DALAnnotations() map[string]Annotation {
	return map[string]Annotation{"ID": {Default: "one"}}
}

type order struct {
	ID       int64 `dal:"id"`
	Customer string
	Lines    []*orderLine
}

type orderLine struct {
	OrderID int64 `dal:"order_id"`
	ID      int64 `dal:"id"`
	Product string
	Notes   []lineNote
}

type lineNote struct {
	LineID int64 `dal:"line_id"`
	Text   string
}

type userTable []string

func (u userTable) TableValue() (types.TabularResult, error) {
	rows := make([][]any, len(u))
	for i, name := range u {
		rows[i] = []any{name}
	}
	return types.NewTabularResult([]string{"name"}, []string{"varchar"}, rows...), nil
}

type procedureArgs struct {
	Search  string `dal:"search" dal_write:"%%%s%%"`
	Limit   *int
	Users   userTable
	Total   int64 `dal:"total,output"`
	Filter  *address
	Skipped string `dal:"-"`
}
