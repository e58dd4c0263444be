/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package identity

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Identity is the stable id a session acts as once sign-in completed.
type Identity struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
}

// Provider signs a session in. Errors are retried by the Bootstrap unless they
// are wrapped with backoff.Permanent.
type Provider interface {
	SignIn(ctx context.Context) (Identity, error)
}

var ErrInvalidToken = errors.New("invalid sign-in token")

// Anonymous issues a fresh random id, once per provider.
type Anonymous struct {
	id string
}

func NewAnonymous() *Anonymous {
	return &Anonymous{id: uuid.NewString()}
}

func (a *Anonymous) SignIn(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, backoff.Permanent(err)
	}
	return Identity{ID: a.id, Anonymous: true}, nil
}

// TokenProvider signs in with a pre-issued HS256 token whose subject is the id.
type TokenProvider struct {
	token  string
	secret []byte
}

func NewTokenProvider(token, secret string) *TokenProvider {
	return &TokenProvider{token: token, secret: []byte(secret)}
}

func (p *TokenProvider) SignIn(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, backoff.Permanent(err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(p.token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, backoff.Permanent(errors.Wrap(ErrInvalidToken, err.Error()))
	}
	if claims.Subject == "" {
		return Identity{}, backoff.Permanent(errors.Wrap(ErrInvalidToken, "token has no subject"))
	}

	return Identity{ID: claims.Subject}, nil
}

// IssueToken signs a token for subject. Used by tooling and tests.
func IssueToken(subject, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject})
	return token.SignedString([]byte(secret))
}

// Static always returns the same identity.
type Static struct {
	Identity Identity
}

func (s Static) SignIn(ctx context.Context) (Identity, error) {
	return s.Identity, nil
}

// NewProvider picks token sign-in when a token is configured and anonymous sign-in otherwise.
func NewProvider(initialToken, tokenSecret string) Provider {
	if initialToken != "" {
		return NewTokenProvider(initialToken, tokenSecret)
	}
	return NewAnonymous()
}
