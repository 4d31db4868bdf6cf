package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email     string             `bson:"email" json:"email" validate:"required,email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Username  string             `bson:"username,omitempty" json:"username,omitempty" validate:"omitempty,max=20"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
