package session

import (
	"context"
	"errors"

	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

var (
	ErrDuplicateID = errors.New("session id already exists")
	ErrUnknownID   = errors.New("session id not found")
)

// Store abstracts session persistence so the manager never touches the
// backing technology directly. Get and GetByCode return nil (not an error)
// when nothing matches; Update of an unknown id fails with ErrUnknownID so
// lost updates never vanish silently.
type Store interface {
	Create(ctx context.Context, s *sessionModel.Session) error
	Get(ctx context.Context, id string) (*sessionModel.Session, error)
	GetByCode(ctx context.Context, code string) (*sessionModel.Session, error)
	Update(ctx context.Context, s *sessionModel.Session) error
	Close() error
}
