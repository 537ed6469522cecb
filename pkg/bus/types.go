package bus

// Attachment is a file delivered alongside an inbound chat message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
}

type InboundMessage struct {
	Channel     string
	SenderID    string
	SenderName  string
	ChatID      string
	Content     string
	Attachments []Attachment
	SessionKey  string
	Metadata    map[string]string
}

type OutboundMessage struct {
	Channel   string
	ChatID    string
	Content   string
	ImageURLs []string
	IsError   bool
}
