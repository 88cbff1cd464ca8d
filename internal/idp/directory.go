package idp

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// User is one account of the directory.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`

	passwordHash string
}

func (u *User) public() User {
	return User{ID: u.ID, Email: u.Email, Name: u.Name, Roles: slices.Clone(u.Roles)}
}

// Directory is an in-memory account list keyed by normalized email. It is safe for concurrent
// use.
type Directory struct {
	hasher *Hasher
	// dummy is verified against for unknown emails so both paths cost one hash.
	dummy string

	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[string]*User
}

// NewDirectory creates an empty directory hashing with h.
func NewDirectory(h *Hasher) (*Directory, error) {
	dummy, err := h.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &Directory{
		hasher:  h,
		dummy:   dummy,
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add creates an account.
func (d *Directory) Add(email, name, password string, roles ...string) (User, error) {
	key := normalizeEmail(email)
	if key == "" {
		return User{}, fmt.Errorf("%w: empty email", ErrInvalidCredentials)
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	if roles == nil {
		roles = []string{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[key]; ok {
		return User{}, ErrUserExists
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        key,
		Name:         name,
		Roles:        slices.Clone(roles),
		passwordHash: hash,
	}
	d.byEmail[key] = u
	d.byID[u.ID] = u
	return u.public(), nil
}

// Authenticate checks email and password. Hashes produced with weaker parameters are
// upgraded on success.
func (d *Directory) Authenticate(email, password string) (User, error) {
	d.mu.RLock()
	u, ok := d.byEmail[normalizeEmail(email)]
	var hash string
	if ok {
		hash = u.passwordHash
	}
	d.mu.RUnlock()

	if !ok {
		_, _ = d.hasher.Verify(password, d.dummy)
		return User{}, ErrInvalidCredentials
	}
	match, err := d.hasher.Verify(password, hash)
	if err != nil || !match {
		return User{}, ErrInvalidCredentials
	}

	if upgrade, _ := d.hasher.NeedsUpgrade(hash); upgrade {
		if next, err := d.hasher.Hash(password); err == nil {
			d.mu.Lock()
			if u.passwordHash == hash {
				u.passwordHash = next
			}
			d.mu.Unlock()
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return u.public(), nil
}

// Lookup returns the account with id.
func (d *Directory) Lookup(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return User{}, false
	}
	return u.public(), true
}

// SetRoles replaces the roles of the account with id. Tokens issued afterwards carry them.
func (d *Directory) SetRoles(id string, roles ...string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return false
	}
	if roles == nil {
		roles = []string{}
	}
	u.Roles = slices.Clone(roles)
	return true
}

// Available reports whether email is not yet taken.
func (d *Directory) Available(email string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, taken := d.byEmail[normalizeEmail(email)]
	return !taken
}
