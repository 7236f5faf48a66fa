package sqlcgen

import "time"

type Layer struct {
	Key       string
	Name      string
	Config    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
