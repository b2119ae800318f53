package mockapi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/jrsteele09/go-fleet-client/internal/errors"
	"github.com/jrsteele09/go-fleet-client/session"
)

// User is an account held by the mock backend.
type User struct {
	ID           int
	Username     string
	Email        string
	PasswordHash string
	Role         string
	IsStaff      bool
}

// Public is the user record returned to clients.
func (u *User) Public() session.User {
	return session.User{ID: u.ID, Name: u.Username, Email: u.Email, Role: u.Role}
}

// UserStore is an in-memory user table keyed by id and email.
type UserStore struct {
	users    map[int]*User
	emailIDs map[string]int
	nextID   int
	cost     int
	lock     sync.RWMutex
}

func NewUserStore(bcryptCost int) *UserStore {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserStore{
		users:    make(map[int]*User),
		emailIDs: make(map[string]int),
		nextID:   1,
		cost:     bcryptCost,
	}
}

// Create adds an account. Superusers are staff and may list users.
func (s *UserStore) Create(username, email, password, role string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role == "" {
		role = session.RoleFleetOwner
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("UserStore.Create hash: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.emailIDs[email]; ok {
		return nil, apperrors.ErrUserExists
	}
	u := &User{
		ID:           s.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsStaff:      role == session.RoleSuperuser,
	}
	s.nextID++
	s.users[u.ID] = u
	s.emailIDs[email] = u.ID
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	id, ok := s.emailIDs[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *UserStore) GetByID(id int) (*User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

// List returns every user ordered by id.
func (s *UserStore) List() []*User {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Authenticate returns the user whose email and password match.
func (s *UserStore) Authenticate(email, password string) (*User, error) {
	u, err := s.GetByEmail(email)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !CheckPasswordHash(password, u.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return u, nil
}

// ValidatePasswordStrength requires at least 8 characters with an upper case
// letter, a lower case letter and a digit.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
