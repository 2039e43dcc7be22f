package models

import "time"

// Website is a deployed static-site bundle backed by Files under a shared
// prefix. All files whose name starts with Prefix belong to the website.
type Website struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"` // unique, URL-safe
	Prefix    string    `db:"prefix" json:"prefix"` // sites/{id}/
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
