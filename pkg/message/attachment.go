package message

const defaultAttachmentColor = "good"

// Attachment is rich message content. Transports without attachment support
// send Fallback as plain text instead.
type Attachment struct {
	Pretext  string            `json:"pretext"`
	Text     string            `json:"text"`
	Fallback string            `json:"fallback"`
	Color    string            `json:"color"`
	Fields   []Field           `json:"fields"`
	Override map[string]string `json:"-"`
}

// Field is one titled value inside an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewAttachment builds an attachment whose fallback defaults to text, then pretext.
func NewAttachment(pretext string, text string, fallback string) Attachment {
	if fallback == "" {
		fallback = text
	}
	if fallback == "" {
		fallback = pretext
	}

	return Attachment{
		Pretext:  pretext,
		Text:     text,
		Fallback: fallback,
		Color:    defaultAttachmentColor,
	}
}

func (a Attachment) WithColor(color string) Attachment {
	a.Color = color
	return a
}

func (a Attachment) WithField(title string, value string, short bool) Attachment {
	a.Fields = append(append([]Field(nil), a.Fields...), Field{Title: title, Value: value, Short: short})
	return a
}

// WithIcon overrides the poster icon where the transport supports it.
func (a Attachment) WithIcon(url string) Attachment {
	return a.withOverride("icon_url", url)
}

// WithName overrides the poster name where the transport supports it.
func (a Attachment) WithName(name string) Attachment {
	return a.withOverride("username", name)
}

func (a Attachment) withOverride(key string, value string) Attachment {
	next := make(map[string]string, len(a.Override)+1)
	for k, v := range a.Override {
		next[k] = v
	}
	next[key] = value
	a.Override = next
	return a
}
