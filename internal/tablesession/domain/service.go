package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ResolveOpenSession(ctx context.Context, restaurantID snowflake.ID, table string) (*Session, error)
	Aggregate(ctx context.Context, restaurantID snowflake.ID, sessionID string) (*Aggregate, error)
	FindOpenByTable(ctx context.Context, restaurantID snowflake.ID, table string) (*Aggregate, error)
	List(ctx context.Context, req ListRequest) ([]Summary, error)
	// OpenSessions returns every open session of a restaurant with the
	// payments already taken against them.
	OpenSessions(ctx context.Context, restaurantID snowflake.ID) ([]Session, []PaymentEntry, error)
}

type ListRequest struct {
	RestaurantID snowflake.ID
	Status       string
	Search       string
	Limit        int
}

var (
	ErrInvalidTable        = errors.New("invalid_table")
	ErrInvalidSessionID    = errors.New("invalid_session_id")
	ErrInvalidStatusFilter = errors.New("invalid_status_filter")
	ErrSessionNotFound     = errors.New("session_not_found")
	ErrAmbiguousSession    = errors.New("ambiguous_open_session")
)
