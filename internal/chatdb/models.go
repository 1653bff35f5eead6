package chatdb

// MessageRow is one raw record from the message store. The pipeline
// treats it as immutable input: either Text or Body carries the
// message content, never both reliably.
type MessageRow struct {
	RowID           int64
	Text            string
	Body            []byte
	IsFromMe        bool
	Date            string
	SenderKey       string
	ConversationKey string
	ChatDisplayName string
	Service         string
}

// AttachmentRow is one raw attachment record, ordered within its
// message by Ordinal (ascending source rowid).
type AttachmentRow struct {
	MessageRowID    int64
	Ordinal         int
	Path            string
	MimeType        string
	TransferName    string
	Date            string
	IsFromMe        bool
	SenderKey       string
	ChatDisplayName string
}

// GroupChatRow describes a group conversation and its participants in
// join-table order.
type GroupChatRow struct {
	Key          string
	DisplayName  string
	Participants []string
}

// MessageListOptions filters the raw message query.
type MessageListOptions struct {
	// Since limits extraction to rows strictly newer than this
	// timestamp (the update cursor). Zero means no lower bound.
	Since string
	// Limit caps the number of rows fetched; <= 0 uses the default.
	Limit int
}

// Counts summarizes the source database for diagnostics.
type Counts struct {
	Messages    int64 `json:"messages"`
	Chats       int64 `json:"chats"`
	Handles     int64 `json:"handles"`
	Attachments int64 `json:"attachments"`
}

const (
	defaultMessageLimit    = 500000
	defaultAttachmentLimit = 20000
)
