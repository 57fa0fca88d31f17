package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/foodies-app/api/internal/domain"
	pfirestore "github.com/foodies-app/api/internal/platform/firestore"
)

const userCollection = "users"

// UserRepository reads user profiles from Firestore. Profile writes happen in
// the accounts system; this API only consumes them.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := toDomainProfile(doc.ID, doc.Data)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

type userDocument struct {
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toDomainProfile(userID string, doc userDocument) domain.UserProfile {
	role := domain.UserRole(strings.ToLower(strings.TrimSpace(doc.Role)))
	switch role {
	case domain.RoleUser, domain.RoleRestaurantOwner, domain.RoleAdmin:
	default:
		role = domain.RoleUser
	}
	return domain.UserProfile{
		ID:        userID,
		Email:     strings.ToLower(strings.TrimSpace(doc.Email)),
		Name:      strings.TrimSpace(doc.Name),
		Role:      role,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
