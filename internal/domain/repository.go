package domain

import "context"

// UserRepository defines access methods for users.
type UserRepository interface {
	UpsertByGoogleSub(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// RenderRepository persists renders. Get returns ErrNotFound for unknown ids.
// Update is a full-row write of a render previously read with Get.
type RenderRepository interface {
	Create(ctx context.Context, render *Render) error
	Get(ctx context.Context, id string) (*Render, error)
	Update(ctx context.Context, render *Render) error
}

// GalleryRepository serves the read side over completed renders.
type GalleryRepository interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
	Styles(ctx context.Context) ([]string, error)
	ListDone(ctx context.Context, limit int) ([]Render, error)
}
