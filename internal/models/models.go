// Package models defines the durable records exchanged between the store,
// the services and the HTTP API.
package models

import "time"

// User is a registered account. Password holds the bcrypt hash and is never
// serialized.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Avatar    *string   `json:"avatar"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublicUser is the owner summary embedded in post and chat responses.
type PublicUser struct {
	ID       string  `json:"id,omitempty"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
	Phone    *string `json:"phone,omitempty"`
}

// Listing type and property kinds accepted for posts.
const (
	TypeBuy  = "buy"
	TypeRent = "rent"

	PropertyApartment = "apartment"
	PropertyHouse     = "house"
	PropertyCondo     = "condo"
	PropertyLand      = "land"
)

// Post is a property listing. Images, Models and Panoramic hold asset URLs.
type Post struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Price     int         `json:"price"`
	Images    []string    `json:"images"`
	Address   string      `json:"address"`
	City      string      `json:"city"`
	Bedroom   int         `json:"bedroom"`
	Bathroom  int         `json:"bathroom"`
	Latitude  string      `json:"latitude"`
	Longitude string      `json:"longitude"`
	Type      string      `json:"type"`
	Property  string      `json:"property"`
	Models    []string    `json:"models"`
	Panoramic []string    `json:"panoramic"`
	UserID    string      `json:"userId"`
	CreatedAt time.Time   `json:"createdAt"`
	Detail    *PostDetail `json:"postDetail,omitempty"`
	User      *PublicUser `json:"user,omitempty"`
	IsSaved   *bool       `json:"isSaved,omitempty"`
}

// PostDetail is the optional 1:1 extension of a Post.
type PostDetail struct {
	PostID     string  `json:"postId"`
	Desc       string  `json:"desc"`
	Utilities  *string `json:"utilities"`
	Pet        *string `json:"pet"`
	Income     *string `json:"income"`
	Size       *int    `json:"size"`
	School     *int    `json:"school"`
	Bus        *int    `json:"bus"`
	Restaurant *int    `json:"restaurant"`
}

// PostFilter narrows a post listing. Zero values mean "no constraint".
type PostFilter struct {
	City     string
	Type     string
	Property string
	Bedroom  int
	MinPrice int
	MaxPrice int
}

// Coordinates is the map position of a post.
type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Chat is a conversation between exactly two users.
type Chat struct {
	ID            string      `json:"id"`
	UserIDs       []string    `json:"userIDs"`
	SeenBy        []string    `json:"seenBy"`
	LastMessage   *string     `json:"lastMessage"`
	LastMessageAt *time.Time  `json:"lastMessageAt"`
	CreatedAt     time.Time   `json:"createdAt"`
	Receiver      *PublicUser `json:"receiver,omitempty"`
	Messages      []Message   `json:"messages,omitempty"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID string) string {
	for _, id := range c.UserIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// Message is one chat entry.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
