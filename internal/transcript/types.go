package transcript

import "strings"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerInterviewer Speaker = "INTERVIEWER"
	SpeakerAdolescent  Speaker = "ADOLESCENT"
	SpeakerParent      Speaker = "PARENT"
	SpeakerChild       Speaker = "CHILD"
	SpeakerUnknown     Speaker = "UNKNOWN"
)

// speakerLabels is the only place label text is mapped to a Speaker.
var speakerLabels = map[string]Speaker{
	"interviewer": SpeakerInterviewer,
	"adolescent":  SpeakerAdolescent,
	"parent":      SpeakerParent,
	"child":       SpeakerChild,
}

// ParseSpeaker maps a label such as "Parent" to its Speaker. Unrecognised
// labels map to SpeakerUnknown.
func ParseSpeaker(label string) Speaker {
	if s, ok := speakerLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return s
	}
	return SpeakerUnknown
}

// IsInterviewer reports whether the speaker asked the questions.
func (s Speaker) IsInterviewer() bool {
	return s == SpeakerInterviewer
}

const (
	// DefaultID is used when a turn carries no identifier.
	DefaultID = "id"
	// DefaultTimestamp is used when a turn's timestamp line is missing or malformed.
	DefaultTimestamp = "__:__:__:__ --> __:__:__:__"
)

// Turn is one contiguous unit of speech attributed to a single speaker.
// Text holds the turn's sentences in order and is never empty.
type Turn struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Speaker   Speaker  `json:"speaker"`
	Text      []string `json:"text"`
}

// Transcript is the ordered sequence of turns of one file.
type Transcript []Turn
