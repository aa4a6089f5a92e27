package models

import "time"

type Restaurant struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
