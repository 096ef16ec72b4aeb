package gifttask

import "time"

type Status string

const (
	StatusPending        Status = "pending"
	StatusClaimed        Status = "claimed"
	StatusCompleted      Status = "completed"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartialSuccess || s == StatusFailed
}

type Task struct {
	ID                 int64      `db:"id" json:"id"`
	AccountID          int64      `db:"account_id" json:"account_id"`
	GiftID             string     `db:"gift_id" json:"gift_id"`
	GiftName           string     `db:"gift_name" json:"gift_name"`
	RoomID             string     `db:"room_id" json:"room_id"`
	QuantityRequested  int        `db:"quantity_requested" json:"quantity_requested"`
	QuantityDelivered  int        `db:"quantity_delivered" json:"quantity_delivered"`
	UnitCost           int64      `db:"unit_cost" json:"unit_cost"`
	RefundAmount       int64      `db:"refund_amount" json:"refund_amount"`
	Status             Status     `db:"status" json:"status"`
	ClaimedAt          *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	ClaimedBy          *string    `db:"claimed_by" json:"claimed_by,omitempty"`
	AttemptCount       int        `db:"attempt_count" json:"attempt_count"`
	LastError          *string    `db:"last_error" json:"last_error,omitempty"`
	DebitTransactionID int64      `db:"debit_transaction_id" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *Task) TotalCost() int64 {
	return t.UnitCost * int64(t.QuantityRequested)
}

// View is the read-only projection shown to the account owner.
func (t *Task) View() StatusView {
	return StatusView{
		ID:                t.ID,
		GiftID:            t.GiftID,
		GiftName:          t.GiftName,
		RoomID:            t.RoomID,
		Status:            t.Status,
		QuantityRequested: t.QuantityRequested,
		QuantityDelivered: t.QuantityDelivered,
		UnitCost:          t.UnitCost,
		TotalCost:         t.TotalCost(),
		RefundAmount:      t.RefundAmount,
		LastError:         t.LastError,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// Assignment is what a delivery agent receives after a successful claim.
type Assignment struct {
	ID           int64      `json:"id"`
	GiftID       string     `json:"gift_id"`
	GiftName     string     `json:"gift_name"`
	RoomID       string     `json:"room_id"`
	Quantity     int        `json:"quantity" example:"10"`
	AttemptCount int        `json:"attempt_count"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

func (t *Task) Assignment() Assignment {
	return Assignment{
		ID:           t.ID,
		GiftID:       t.GiftID,
		GiftName:     t.GiftName,
		RoomID:       t.RoomID,
		Quantity:     t.QuantityRequested,
		AttemptCount: t.AttemptCount,
		ClaimedAt:    t.ClaimedAt,
	}
}

// Summary is what a delivery agent sees when listing the queue.
type Summary struct {
	ID           int64     `db:"id" json:"id"`
	GiftID       string    `db:"gift_id" json:"gift_id"`
	GiftName     string    `db:"gift_name" json:"gift_name"`
	RoomID       string    `db:"room_id" json:"room_id"`
	Quantity     int       `db:"quantity_requested" json:"quantity"`
	AttemptCount int       `db:"attempt_count" json:"attempt_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type StatusView struct {
	ID                int64     `json:"id"`
	GiftID            string    `json:"gift_id"`
	GiftName          string    `json:"gift_name"`
	RoomID            string    `json:"room_id"`
	Status            Status    `json:"status" example:"partial_success"`
	QuantityRequested int       `json:"quantity_requested" example:"10"`
	QuantityDelivered int       `json:"quantity_delivered" example:"6"`
	UnitCost          int64     `json:"unit_cost" example:"15"`
	TotalCost         int64     `json:"total_cost" example:"150"`
	RefundAmount      int64     `json:"refund_amount" example:"60"`
	LastError         *string   `json:"last_error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type NewTask struct {
	AccountID          int64
	GiftID             string
	GiftName           string
	RoomID             string
	Quantity           int
	UnitCost           int64
	DebitTransactionID int64
}

// Outcome is the settled result of a complete or fail call. Replayed is set
// when the task was already terminal and nothing changed.
type Outcome struct {
	Task     *Task
	Refunded int64
	Replayed bool
}

type ReclaimReport struct {
	Requeued []int64 `json:"requeued"`
	Failed   []int64 `json:"failed"`
	Expired  []int64 `json:"expired"`
}

func (r *ReclaimReport) Empty() bool {
	return len(r.Requeued) == 0 && len(r.Failed) == 0 && len(r.Expired) == 0
}

type CompleteRequest struct {
	DeliveredQuantity *int `json:"delivered_quantity" validate:"required,gte=0" example:"6"`
}

type FailRequest struct {
	Error string `json:"error" validate:"required,max=1000" example:"room closed"`
}

type OutcomeResponse struct {
	Task         StatusView `json:"task"`
	RefundAmount int64      `json:"refund_amount" example:"60"`
	Replayed     bool       `json:"replayed"`
}

type ListPendingResponse struct {
	Tasks []Summary `json:"tasks"`
}

type ListTasksResponse struct {
	Tasks  []StatusView `json:"tasks"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
