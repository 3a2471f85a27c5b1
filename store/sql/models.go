package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type itemRecord struct {
	bun.BaseModel `bun:"table:session_store_items,alias:ssi"`

	ID        string    `bun:"id,pk"`
	ItemKey   string    `bun:"item_key,notnull,unique"`
	Value     string    `bun:"value,notnull"`
	Origin    string    `bun:"origin,notnull"`
	Version   int64     `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// changeRecord is one entry of the change log other processes poll. A nil
// Value records a removal.
type changeRecord struct {
	bun.BaseModel `bun:"table:session_store_changes,alias:ssc"`

	Seq       int64     `bun:"seq,pk,autoincrement"`
	ItemKey   string    `bun:"item_key,notnull"`
	Value     *string   `bun:"value"`
	Origin    string    `bun:"origin,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
