/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/carverauto/dropsync/pkg/hashutil"
)

var errAdminKeyUnset = errors.New("no admin api key configured")

// AdminKey checks the admin API key. The key is configured either in plain
// text or as a bcrypt hash; successful bcrypt checks are remembered by
// digest so repeated requests skip the expensive comparison.
type AdminKey struct {
	digest string
	hash   []byte

	mu       sync.RWMutex
	verified string
}

// NewAdminKey builds a checker. At most one of plain and bcryptHash is set.
func NewAdminKey(plain, bcryptHash string) (*AdminKey, error) {
	switch {
	case plain != "":
		return &AdminKey{digest: hashutil.TokenDigest(plain)}, nil
	case bcryptHash != "":
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, err
		}

		return &AdminKey{hash: []byte(bcryptHash)}, nil
	default:
		return nil, errAdminKeyUnset
	}
}

// HashAdminKey returns the bcrypt hash to put in admin_api_key_hash.
func HashAdminKey(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Check reports whether presented is the admin key.
func (k *AdminKey) Check(presented string) bool {
	if presented == "" {
		return false
	}

	if k.digest != "" {
		return hashutil.TokenMatches(presented, k.digest)
	}

	k.mu.RLock()
	verified := k.verified
	k.mu.RUnlock()

	if verified != "" && hashutil.TokenMatches(presented, verified) {
		return true
	}

	if bcrypt.CompareHashAndPassword(k.hash, []byte(presented)) != nil {
		return false
	}

	k.mu.Lock()
	k.verified = hashutil.TokenDigest(presented)
	k.mu.Unlock()

	return true
}
