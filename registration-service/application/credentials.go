package application

import (
	"sync"

	"github.com/draftea/saga-orchestrator/shared/models"
)

// Credentials holds plain passwords in memory only while VALIDATE_USER needs them.
// The saga state carries an opaque reference instead, so passwords are never persisted.
type Credentials struct {
	passwords sync.Map
}

func NewCredentials() *Credentials {
	return &Credentials{}
}

// Put stores password and returns its reference
func (c *Credentials) Put(password string) string {
	ref := models.GenerateUUID().String()
	c.passwords.Store(ref, password)
	return ref
}

func (c *Credentials) Get(ref string) (string, bool) {
	password, ok := c.passwords.Load(ref)
	if !ok {
		return "", false
	}
	return password.(string), true
}

func (c *Credentials) Forget(ref string) {
	c.passwords.Delete(ref)
}
