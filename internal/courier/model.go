package courier

import "time"

// Courier is the durable registry row. Liveness lives in redis with a TTL;
// this row carries only what must survive a reconnect: the package limit and
// the blocked flag.
type Courier struct {
	ID           string    `db:"id" json:"id"`
	PackageLimit int       `db:"package_limit" json:"package_limit"`
	Blocked      bool      `db:"blocked" json:"blocked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func New(id string, packageLimit int, now time.Time) *Courier {
	return &Courier{
		ID:           id,
		PackageLimit: packageLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
