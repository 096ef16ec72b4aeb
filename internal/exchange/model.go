package exchange

import "giftrelay/internal/gifttask"

type Request struct {
	AccountID      int64
	GiftID         string
	RoomID         string
	Quantity       int
	TotalCost      *int64
	IdempotencyKey string
}

// Receipt is returned for both new and replayed exchanges. On replay it
// describes the original debit and task.
type Receipt struct {
	Task         *gifttask.Task
	TotalCost    int64
	BalanceAfter int64
	Replayed     bool
}

// idempotencyKeyRule matches the IdempotencyKey tag below and also applies
// to keys sent in the Idempotency-Key header.
const idempotencyKeyRule = "min=8,max=128,printascii"

type ExchangeRequest struct {
	GiftID         string `json:"gift_id" validate:"required,max=64,printascii" example:"heart"`
	RoomID         string `json:"room_id" validate:"required,max=128" example:"room-9"`
	Quantity       int    `json:"quantity" validate:"required,gte=1" example:"10"`
	TotalCost      *int64 `json:"total_cost,omitempty" validate:"omitempty,gt=0" example:"150"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,min=8,max=128,printascii" example:"5b0c6f0e-9d1f-4c9a-8a55-6f3f1b1f1a10"`
}

type ExchangeResponse struct {
	TaskID       int64           `json:"task_id" example:"7"`
	Status       gifttask.Status `json:"status" example:"pending"`
	GiftID       string          `json:"gift_id" example:"heart"`
	RoomID       string          `json:"room_id" example:"room-9"`
	Quantity     int             `json:"quantity" example:"10"`
	UnitCost     int64           `json:"unit_cost" example:"15"`
	TotalCost    int64           `json:"total_cost" example:"150"`
	BalanceAfter int64           `json:"balance_after" example:"850"`
	Replayed     bool            `json:"replayed"`
}

type CatalogResponse struct {
	Gifts       []Gift `json:"gifts"`
	MaxQuantity int    `json:"max_quantity" example:"100"`
}
