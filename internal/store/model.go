package store

import (
	"time"

	"gorm.io/datatypes"
)

// OrderModel is the journaled order row, upserted on every order event so
// the table always holds the latest state.
type OrderModel struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	OrderID      string         `gorm:"column:order_id;uniqueIndex"`
	Symbol       string         `gorm:"column:symbol;index"`
	Side         string         `gorm:"column:side"`
	Type         string         `gorm:"column:type"`
	Status       string         `gorm:"column:status;index"`
	Size         float64        `gorm:"column:size"`
	FilledSize   float64        `gorm:"column:filled_size"`
	AvgFillPrice float64        `gorm:"column:avg_fill_price"`
	Fees         float64        `gorm:"column:fees"`
	SignalID     string         `gorm:"column:signal_id"`
	Reason       string         `gorm:"column:reason"`
	Raw          datatypes.JSON `gorm:"column:raw;type:TEXT"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;index"`
}

func (OrderModel) TableName() string { return "orders" }

// EventModel journals every bus event as an append-only row.
type EventModel struct {
	ID      uint           `gorm:"primaryKey;autoIncrement"`
	Kind    string         `gorm:"column:kind;index"`
	Symbol  string         `gorm:"column:symbol;index"`
	At      time.Time      `gorm:"column:at;index"`
	Payload datatypes.JSON `gorm:"column:payload;type:TEXT"`
}

func (EventModel) TableName() string { return "events" }

// PositionModel is the last journaled state per symbol.
type PositionModel struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Symbol        string    `gorm:"column:symbol;uniqueIndex"`
	Size          float64   `gorm:"column:size"`
	EntryPrice    float64   `gorm:"column:entry_price"`
	MarkPrice     float64   `gorm:"column:mark_price"`
	RealizedPnL   float64   `gorm:"column:realized_pnl"`
	UnrealizedPnL float64   `gorm:"column:unrealized_pnl"`
	Fees          float64   `gorm:"column:fees"`
	Status        string    `gorm:"column:status"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }
