package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Author is the display name stored on posts when they are written. Reads
// replace it with the user's current name when the user still exists.
type Author struct {
	UserID    int64  `bson:"user_id" json:"_id"`
	FirstName string `bson:"first_name" json:"firstName"`
	LastName  string `bson:"last_name" json:"lastName"`
}

// DisplayName is "first last", or just the first name.
func (a Author) DisplayName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

type Comment struct {
	UserID    int64     `bson:"user_id" json:"userId"`
	Name      string    `bson:"name" json:"name"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    int64              `bson:"user_id" json:"userId"`
	Author    Author             `bson:"author" json:"user"`
	Title     string             `bson:"title" json:"title"`
	Content   string             `bson:"content" json:"content"`
	Tags      []string           `bson:"tags" json:"tags"`
	Comments  []Comment          `bson:"comments" json:"comments"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// PostSummary is the short form listed on profiles.
type PostSummary struct {
	ID        string    `bson:"-" json:"_id"`
	Title     string    `bson:"title" json:"title"`
	Tags      []string  `bson:"tags" json:"tags"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
