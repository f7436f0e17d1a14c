package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const fnGetUsersByField = "core_user_get_users_by_field"

type User struct {
	ID       int    `json:"id" yaml:"id"`
	FullName string `json:"fullname" yaml:"fullname"`
	Email    string `json:"email" yaml:"email"`
}

type userWire struct {
	ID       *int    `json:"id"`
	FullName *string `json:"fullname"`
	Email    *string `json:"email"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var w userWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return missingField("id")
	case w.FullName == nil:
		return missingField("fullname")
	case w.Email == nil:
		return missingField("email")
	}
	*u = User{ID: *w.ID, FullName: *w.FullName, Email: *w.Email}
	return nil
}

func (u User) String() string {
	if u.Email == "" {
		return u.FullName
	}
	return fmt.Sprintf("%s <%s>", u.FullName, u.Email)
}

func (c *client) GetUser(ctx context.Context, sess Session, userID int) (User, error) {
	params := url.Values{}
	params.Set("field", "id")
	params.Set("values[]", strconv.Itoa(userID))

	var users []User
	if err := c.call(ctx, sess, fnGetUsersByField, params, &users); err != nil {
		return User{}, err
	}
	for _, usr := range users {
		if usr.ID == userID {
			return usr, nil
		}
	}
	return User{}, notFound(KindUser, userID)
}
