package storage

import (
	"encoding/json"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// PendingPayment is the single payment awaiting a user's approval. Setting a
// new one replaces whatever was pending before.
type PendingPayment struct {
	Npub      string                `json:"npub"`
	Request   wallet.PaymentRequest `json:"request"`
	CreatedAt time.Time             `json:"created"`
}

func (p PendingPayment) Key() string {
	return "pending:" + p.Npub
}

// SetPending stores p as the user's pending payment, replacing any previous
// one.
func (db *DB) SetPending(p *PendingPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return db.Set(p)
}

// PopPending retrieves and clears the user's pending payment in one
// transaction. A payment can be popped exactly once; concurrent approvals
// see nil. Returns nil without error when nothing is pending.
func (db *DB) PopPending(npub string) (*PendingPayment, error) {
	key := PendingPayment{Npub: npub}.Key()
	var p *PendingPayment
	err := db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		popped := &PendingPayment{}
		if err := json.Unmarshal([]byte(v), popped); err != nil {
			return err
		}
		if _, err := tx.Delete(key); err != nil {
			return err
		}
		p = popped
		return nil
	})
	return p, err
}
