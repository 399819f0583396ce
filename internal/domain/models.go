// Package domain defines the persistence models for clients, conversations,
// messages and provider instance credentials. These types are mapped with GORM
// and form the core data layer of the WhatsApp inbox.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Message senders.
const (
	SenderClient = "client"
	SenderUser   = "user"
)

// Message types. TypeMedia is the fallback for payload shapes the classifier
// does not recognise.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeMedia    = "media"
)

// StatusActive is the default status for clients and conversations.
const StatusActive = "active"

// Client is a customer reachable over WhatsApp. Phone holds digits only and is
// the stable external identity key.
//
// Fields:
//   - ID: UUID primary key.
//   - Phone: normalized digits, unique.
//   - Name: display name; may be a generic placeholder until refined.
//   - Status: lifecycle marker, "active" by default.
//   - CreatedBy: staff user owning the provider instance that first saw the
//     client, nil for manual registrations.
type Client struct {
	ID        string    `json:"id"         gorm:"type:varchar(36);primaryKey"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null;uniqueIndex:ux_clients_phone"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;default:'active'"`
	CreatedBy *string   `json:"created_by" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Client.
func (Client) TableName() string { return "clients" }

// Conversation is the single open thread with a client. The unique index on
// ClientID keeps at most one row per client.
type Conversation struct {
	ID            string     `json:"id"              gorm:"type:varchar(36);primaryKey"`
	ClientID      string     `json:"client_id"       gorm:"type:varchar(36);not null;uniqueIndex:ux_conversations_client"`
	AssignedTo    *string    `json:"assigned_to"     gorm:"type:varchar(64);index"`
	Status        string     `json:"status"          gorm:"type:varchar(16);not null;default:'active'"`
	StartedAt     time.Time  `json:"started_at"`
	LastMessageAt *time.Time `json:"last_message_at" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Client Client `json:"-" gorm:"foreignKey:ClientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single WhatsApp message in a conversation, inbound or outbound.
//
// MessageID is the provider's external id; when set it is unique and writes go
// through an upsert keyed on it. ReadAt is only meaningful for client messages
// and is never touched by re-delivery. RawData keeps the original provider
// payload for replay.
type Message struct {
	ID             string         `json:"id"              gorm:"type:varchar(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:varchar(36);not null;index:idx_conv_msgs,priority:1"`
	MessageID      *string        `json:"message_id"      gorm:"type:varchar(128);uniqueIndex:ux_messages_message_id"`
	Sender         string         `json:"sender"          gorm:"type:varchar(16);not null;check:sender IN ('client','user')"`
	FromMe         bool           `json:"from_me"         gorm:"not null;default:false"`
	Content        string         `json:"content"         gorm:"type:text;not null;default:''"`
	MessageType    string         `json:"message_type"    gorm:"type:varchar(16);not null;default:'text'"`
	MediaURL       *string        `json:"media_url"       gorm:"type:text"`
	MediaType      *string        `json:"media_type"      gorm:"type:varchar(128)"`
	FileName       *string        `json:"file_name"       gorm:"type:varchar(255)"`
	FileSize       *int64         `json:"file_size"`
	SentAt         time.Time      `json:"sent_at"         gorm:"not null;index:idx_conv_msgs,priority:2"`
	ReadAt         *time.Time     `json:"read_at"         gorm:"index"`
	RawData        datatypes.JSON `json:"raw_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// InstanceCredentials maps a provider instance to the staff user owning it and
// to the gateway endpoint used to send through it. Stored in the settings
// table and treated as read-only by the pipelines.
type InstanceCredentials struct {
	ID           uint      `json:"-"             gorm:"primaryKey;autoIncrement"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_settings_user_instance,priority:1"`
	InstanceName string    `json:"instance_name" gorm:"type:varchar(128);not null;uniqueIndex:ux_settings_user_instance,priority:2;index"`
	APIURL       string    `json:"api_url"       gorm:"type:text;not null;default:''"`
	APIKey       string    `json:"-"             gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for InstanceCredentials.
func (InstanceCredentials) TableName() string { return "settings" }

// Complete reports whether both the gateway URL and key are set.
func (c InstanceCredentials) Complete() bool {
	return strings.TrimSpace(c.APIURL) != "" && strings.TrimSpace(c.APIKey) != ""
}

// GenericClientName is the placeholder name given to a client whose real name
// is not known yet.
func GenericClientName(phone string) string { return "Contact " + phone }

// IsGenericClientName reports whether name is a placeholder for phone: empty,
// the phone itself, or the synthesized "Contact {phone}".
func IsGenericClientName(name, phone string) bool {
	n := strings.TrimSpace(name)
	return n == "" || n == phone || n == GenericClientName(phone)
}
