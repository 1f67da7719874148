package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// UserID identifies a user. The backend sends it as a string in most payloads
// and as a number in a few, so both forms are accepted.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string { return string(id) }

type Photo struct {
	URL string `json:"url"`
}

type User struct {
	ID           UserID `json:"id" db:"id"`
	FirstName    string `json:"first_name" db:"first_name"`
	SecondName   string `json:"second_name" db:"second_name"`
	ThirdName    string `json:"third_name,omitempty" db:"third_name"`
	Username     string `json:"username" db:"username"`
	Bio          string `json:"bio" db:"bio"`
	Group        string `json:"group" db:"group_name"`
	ProfilePhoto *Photo `json:"profilePhoto,omitempty"`
	Role         string `json:"role,omitempty" db:"role"`
}

// DisplayName never returns an empty string; profiles with missing names fall
// back to the username and then to a fixed placeholder.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.SecondName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Unknown user"
}

// PhotoURL returns "" when the profile has no photo.
func (u User) PhotoURL() string {
	if u.ProfilePhoto == nil {
		return ""
	}
	return u.ProfilePhoto.URL
}

func (u User) IsAdmin() bool { return u.Role == "admin" }

// UserRef is a user as embedded in other payloads. The backend sends either a
// bare id or a (possibly partial) user object.
type UserRef struct {
	ID        UserID `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

func (r *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		var id UserID
		if err := id.UnmarshalJSON(data); err != nil {
			return err
		}
		*r = UserRef{ID: id}
		return nil
	}
	type plain UserRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = UserRef(p)
	return nil
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

// Session is the authenticated identity shared by every component.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (s Session) UserID() UserID { return s.User.ID }

func (s Session) DisplayName() string { return s.User.DisplayName() }

func (s Session) Valid() bool { return s.Token != "" }

// AuthScheme selects how the token is carried in the Authorization header.
type AuthScheme string

const (
	AuthBearer AuthScheme = "bearer"
	AuthBare   AuthScheme = "bare"
)

func ParseAuthScheme(s string) AuthScheme {
	if strings.EqualFold(strings.TrimSpace(s), string(AuthBare)) {
		return AuthBare
	}
	return AuthBearer
}

// Header formats the Authorization header value for token.
func (s AuthScheme) Header(token string) string {
	if s == AuthBare {
		return token
	}
	return "Bearer " + token
}

// Envelope is the response wrapper used by every REST endpoint.
type Envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

type RegisterRequest struct {
	FirstName  string
	SecondName string
	ThirdName  string
	Username   string
	Password   string
	Group      string
	Bio        string
	Photo      *Upload
}

// ProfileUpdate carries the editable profile fields. Empty fields are not sent.
type ProfileUpdate struct {
	FirstName  string `json:"first_name,omitempty"`
	SecondName string `json:"second_name,omitempty"`
	ThirdName  string `json:"third_name,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Group      string `json:"group,omitempty"`
}

// FormatID renders a numeric resource id for URL paths.
func FormatID(id int64) string { return strconv.FormatInt(id, 10) }
