package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account statuses stored in user.status
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Details UserDetails        `json:"user" bson:"user"`
	Version int32              `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo
type UserDetails struct {
	Email                string     `json:"email" bson:"email"`
	Name                 string     `json:"name" bson:"name"`
	Phone                string     `json:"phone" bson:"phone"`
	Address              string     `json:"address" bson:"address"`
	Password             string     `json:"-" bson:"password"`
	EmailVerified        bool       `json:"emailVerified" bson:"emailVerified"`
	Status               string     `json:"status" bson:"status"`
	ResetPasswordToken   string     `json:"-" bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires *time.Time `json:"-" bson:"resetPasswordExpires,omitempty"`
	CreatedAt            time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// PublicUser is the subset of a user that is safe to hand back to clients
type PublicUser struct {
	ID            string    `json:"_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Public strips credentials and reset state from the user
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID.Hex(),
		Email:         u.Details.Email,
		Name:          u.Details.Name,
		Phone:         u.Details.Phone,
		Address:       u.Details.Address,
		EmailVerified: u.Details.EmailVerified,
		Status:        u.Details.Status,
		CreatedAt:     u.Details.CreatedAt,
	}
}
