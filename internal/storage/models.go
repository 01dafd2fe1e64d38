package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert condition kinds.
const (
	ConditionROIAtLeast  = "roi_at_least"
	ConditionPriceAtMost = "price_at_most"
	ConditionAppeared    = "appeared"
)

// Position statuses. Only locked → ready happens in this process; sold is
// set by the request layer.
const (
	PositionLocked = "locked"
	PositionReady  = "ready"
	PositionSold   = "sold"
)

// Snapshot is the latest arbitrage state for one item, unique per name.
// Nil market prices mean the source had no data this cycle, not zero.
type Snapshot struct {
	Name          string
	IconURL       *string
	BuffPrice     *decimal.Decimal
	CGMPrice      *decimal.Decimal
	SkinportPrice *decimal.Decimal
	SteamPrice    *decimal.Decimal
	SellNum       int
	BuyNum        int
	Liquidity     string
	BestROI       decimal.Decimal
	BestMarket    *string
	UpdatedAt     time.Time
}

// Observation is one immutable price fact, append-only.
type Observation struct {
	Name       string
	Source     string
	PriceUSD   decimal.Decimal
	ObservedAt time.Time
}

// UserInfo carries the user fields the evaluation loops need.
type UserInfo struct {
	UserID      int64
	ChatID      int64
	USDRUB      decimal.Decimal
	NotifyOptIn bool
}

// Alert is a user-owned trigger condition joined to its owner.
type Alert struct {
	ID          int64
	ItemName    string
	Condition   string
	Threshold   *decimal.Decimal
	Active      bool
	TriggeredAt *time.Time
	User        UserInfo
}

// Position is a held item with a trade-lock maturation time.
type Position struct {
	ID          int64
	ItemName    string
	Quantity    int
	BuyPriceUSD decimal.Decimal
	BuyMarket   string
	SellMarket  string
	BoughtAt    time.Time
	UnlockAt    *time.Time
	Status      string
	User        UserInfo
}

// CredentialUser is a user holding a Buff session cookie.
type CredentialUser struct {
	User      UserInfo
	Session   string
	UpdatedAt time.Time
}
