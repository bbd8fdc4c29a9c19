package models

import "time"

type Account struct {
	ID            int64  `json:"id,string,omitempty"`
	Email         string `json:"email,omitempty"`
	UserName      string `json:"userName,omitempty"`
	DisplayName   string `json:"displayName"`
	Picture       string `json:"picture"`
	DefaultStatus string `json:"defaultStatus,omitempty"`
	Password      []byte `json:"-"`
}

type Guild struct {
	ID      int64  `json:"id,string"`
	OwnerID int64  `json:"ownerID,string"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type Role struct {
	ID          int64  `json:"id,string"`
	GuildID     int64  `json:"guildID,string"`
	Name        string `json:"name"`
	Permissions uint64 `json:"permissions,string"`
	Position    int    `json:"position"`
	IsDefault   bool   `json:"isDefault"`
}

type Membership struct {
	GuildID   int64   `json:"guildID,string"`
	AccountID int64   `json:"accountID,string"`
	Nickname  string  `json:"nickname,omitempty"`
	RoleIDs   []int64 `json:"roleIDs"`
}

const (
	ChannelKindText  = "text"
	ChannelKindVoice = "voice"
)

type Channel struct {
	ID       int64  `json:"id,string"`
	GuildID  int64  `json:"guildID,string"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Position int    `json:"position"`
}

// Message is the outward shape: Content carries plaintext, the encrypted
// payload never leaves the store package.
type Message struct {
	ID          int64        `json:"id,string"`
	ChannelID   int64        `json:"channelID,string"`
	AuthorID    int64        `json:"authorID,string"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	ReplyToID   int64        `json:"replyToID,string,omitempty"`
	Pinned      bool         `json:"pinned"`
	Edited      bool         `json:"edited"`
	EditedAt    *time.Time   `json:"editedAt,omitempty"`
	Preview     *LinkPreview `json:"preview,omitempty"`
	Author      Account      `json:"author"`
}

type Attachment struct {
	URL  string `json:"url" validate:"required,max=512,url"`
	Name string `json:"name" validate:"required,max=128"`
	Size int64  `json:"size" validate:"min=0"`
}

type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

type Reaction struct {
	MessageID int64  `json:"messageID,string"`
	AccountID int64  `json:"accountID,string"`
	Emoji     string `json:"emoji"`
}

type ReadState struct {
	AccountID    int64 `json:"accountID,string"`
	ChannelID    int64 `json:"channelID,string"`
	LastReadID   int64 `json:"lastReadID,string"`
	MentionCount int   `json:"mentionCount"`
}

type Invite struct {
	Code      string    `json:"code"`
	GuildID   int64     `json:"guildID,string"`
	CreatorID int64     `json:"creatorID,string"`
	CreatedAt time.Time `json:"createdAt"`
}
