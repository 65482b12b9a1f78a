// Copyright 2025 MeetMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package meshsdk

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAccessTokenTTL = 6 * time.Hour

// MeetingClaims are the claims carried by a meeting access token.
type MeetingClaims struct {
	jwt.RegisteredClaims
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Meeting  string `json:"meeting,omitempty"`
	Host     bool   `json:"host,omitempty"`
}

// AccessToken builds signed meeting access tokens. Servers mint these;
// clients pass them to Room.Connect verbatim.
type AccessToken struct {
	apiKey   string
	secret   string
	identity string
	name     string
	email    string
	meeting  string
	host     bool
	ttl      time.Duration
}

func NewAccessToken(apiKey, secret string) *AccessToken {
	return &AccessToken{
		apiKey: apiKey,
		secret: secret,
		ttl:    defaultAccessTokenTTL,
	}
}

func (t *AccessToken) SetIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

func (t *AccessToken) SetName(name string) *AccessToken {
	t.name = name
	return t
}

func (t *AccessToken) SetEmail(email string) *AccessToken {
	t.email = email
	return t
}

func (t *AccessToken) SetMeeting(meetingID string) *AccessToken {
	t.meeting = meetingID
	return t
}

func (t *AccessToken) SetHost(host bool) *AccessToken {
	t.host = host
	return t
}

func (t *AccessToken) SetValidFor(ttl time.Duration) *AccessToken {
	t.ttl = ttl
	return t
}

func (t *AccessToken) ToJWT() (string, error) {
	if t.identity == "" {
		return "", ErrIdentityNotProvided
	}
	now := time.Now()
	claims := MeetingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Identity: t.identity,
		Name:     t.name,
		Email:    t.email,
		Meeting:  t.meeting,
		Host:     t.host,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.secret))
}

// ParseAccessToken verifies the signature and expiry and returns the claims.
func ParseAccessToken(raw, secret string) (*MeetingClaims, error) {
	claims := &MeetingClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAuthToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidAuthToken, err)
	}
	if !token.Valid || claims.Identity == "" {
		return nil, ErrInvalidAuthToken
	}
	return claims, nil
}
