package models

// MessageType indicates who (or what) authored a chat message.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageSystem     MessageType = "system"
	MessageAIResponse MessageType = "ai_response"
)

// MessageModel is the chat message collection. Rooms, membership and the
// composer UI are externally managed; the core only inserts ai_response
// messages, threaded onto the originating message via SharedContentID.
type MessageModel struct {
	Base
	RoomID          string      `json:"room_id"      gorm:"index;not null"`
	UserID          string      `json:"user_id"      gorm:"index;not null"`
	Content         string      `json:"content"      gorm:"type:text;not null"`
	MessageType     MessageType `json:"message_type" gorm:"index;default:'text'"`
	SharedContentID *string     `json:"shared_content_id,omitempty" gorm:"index"`
}

func (MessageModel) TableName() string { return "messages" }
