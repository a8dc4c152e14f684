package store

// User is a registered account. PasswordHash never leaves the process.
type User struct {
	UserID       string `db:"user_id" json:"user_id"`
	Username     string `db:"username" json:"username"`
	Email        string `db:"email" json:"email"`
	DisplayName  string `db:"display_name" json:"display_name"`
	PasswordHash string `db:"password_hash" json:"-"`
	Avatar       string `db:"avatar" json:"avatar"`
	Bio          string `db:"bio" json:"bio"`
	Theme        string `db:"theme" json:"theme"`
	CustomStatus string `db:"custom_status" json:"custom_status"`
	Status       string `db:"status" json:"status"`
	CreatedAt    string `db:"created_at" json:"created_at"`
}

type NewUser struct {
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
}

type Role struct {
	RoleID      string   `json:"role_id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Color       string   `json:"color"`
	Members     []string `json:"members"`
}

type Server struct {
	ServerID    string `db:"server_id" json:"server_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Icon        string `db:"icon" json:"icon"`
	OwnerID     string `db:"owner_id" json:"owner_id"`
	RolesJSON   string `db:"roles" json:"-"`
	CreatedAt   string `db:"created_at" json:"created_at"`

	Roles    []Role   `db:"-" json:"roles"`
	Members  []string `db:"-" json:"members"`
	Channels []string `db:"-" json:"channels"`
}

type NewServer struct {
	Name        string
	Description string
	Icon        string
}

type Channel struct {
	ChannelID   string `db:"channel_id" json:"channel_id"`
	ServerID    string `db:"server_id" json:"server_id"`
	Name        string `db:"name" json:"name"`
	ChannelType string `db:"channel_type" json:"channel_type"`
	Description string `db:"description" json:"description"`
	Position    int    `db:"position" json:"position"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

type NewChannel struct {
	ServerID    string
	Name        string
	ChannelType string
	Description string
}

type Message struct {
	MessageID         string  `db:"message_id" json:"message_id"`
	ChannelID         string  `db:"channel_id" json:"channel_id"`
	AuthorID          string  `db:"author_id" json:"author_id"`
	AuthorUsername    string  `db:"author_username" json:"author_username"`
	AuthorDisplayName string  `db:"author_display_name" json:"author_display_name"`
	Content           string  `db:"content" json:"content"`
	MessageType       string  `db:"message_type" json:"message_type"`
	AttachmentsJSON   string  `db:"attachments" json:"-"`
	CreatedAt         string  `db:"created_at" json:"created_at"`
	EditedAt          *string `db:"edited_at" json:"edited_at"`
	Pinned            bool    `db:"pinned" json:"pinned"`

	Attachments []string   `db:"-" json:"attachments"`
	Reactions   []Reaction `db:"-" json:"reactions"`
}

type NewMessage struct {
	ChannelID         string
	AuthorID          string
	AuthorUsername    string
	AuthorDisplayName string
	Content           string
	MessageType       string
	Attachments       []string
}

type Reaction struct {
	MessageID string `db:"message_id" json:"-"`
	UserID    string `db:"user_id" json:"user_id"`
	Username  string `db:"username" json:"username"`
	Emoji     string `db:"emoji" json:"emoji"`
	CreatedAt string `db:"created_at" json:"-"`
}
