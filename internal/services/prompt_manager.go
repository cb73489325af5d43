package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"supportdesk/internal/models"
)

// PromptManager assembles the system instruction and role-tagged history for
// a reply request. Availability guidance is only surfaced when the merchant
// explicitly asks for a human; the knowledge context always rides along.
type PromptManager struct{}

func NewPromptManager() *PromptManager {
	return &PromptManager{}
}

const basePrompt = `You are a friendly support assistant for a merchant-facing product.
Answer from the reference material below whenever it applies. Be concise and
concrete. If you do not know the answer, say so and suggest the merchant wait
for a human agent; never invent product behavior, prices or policies.`

func (pm *PromptManager) BuildSystemInstruction(
	session *models.SupportSession,
	avail models.Availability,
	ranked []RankedEntry,
	turn string,
) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("\n\n# SESSION\n")
	fmt.Fprintf(&b, "Merchant: %s\n", session.MerchantEmail)
	fmt.Fprintf(&b, "Status: %s\n", session.Status)

	if wantsHuman(turn) {
		b.WriteString("\n# HUMAN AGENT AVAILABILITY\n")
		if avail.Available {
			b.WriteString("A human agent is available right now. Tell the merchant a teammate will join this conversation shortly.\n")
		} else if avail.NextSlot != nil {
			fmt.Fprintf(&b, "No human agent is available right now. The next window opens %s at %s (%s). Share this with the merchant.\n",
				weekdayName(avail.NextSlot.Day), avail.NextSlot.StartTime, avail.NextSlot.Timezone)
		} else {
			b.WriteString("No human agent hours are configured. Let the merchant know a teammate will reply by email.\n")
		}
	}

	if top := (&KnowledgeRanker{}).Promoted(ranked); top != nil {
		b.WriteString("\n# BEST MATCHING ANSWER (use this verbatim if it fits)\n")
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", top.Question, top.Answer)
	}

	if len(ranked) > 0 {
		b.WriteString("\n# REFERENCE MATERIAL\n")
		for _, entry := range ranked {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", entry.Question, entry.Answer)
		}
	}

	return b.String()
}

// BuildHistory reformats prior turns into role-tagged contents and appends
// the new user turn. Inline-encoded image attachments are decoded back into
// binary parts.
func (pm *PromptManager) BuildHistory(messages []models.Message, turn, imageURL string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages)+1)

	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Sender == models.SenderAI || msg.Sender == models.SenderAdmin {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(messageParts(msg.Content, msg.ImageURL), genai.Role(role)))
	}

	contents = append(contents, genai.NewContentFromParts(messageParts(turn, imageURL), genai.RoleUser))
	return contents
}

func messageParts(text, imageURL string) []*genai.Part {
	parts := []*genai.Part{genai.NewPartFromText(text)}
	if blob, ok := decodeInlineImage(imageURL); ok {
		parts = append(parts, &genai.Part{InlineData: blob})
	}
	return parts
}

// decodeInlineImage parses a "data:<mime>;base64,<payload>" attachment.
// Anything else (absent, or a plain URL) yields no binary part.
func decodeInlineImage(dataURL string) (*genai.Blob, bool) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, false
	}
	meta, payload, found := strings.Cut(dataURL[len("data:"):], ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return &genai.Blob{
		MIMEType: strings.TrimSuffix(meta, ";base64"),
		Data:     data,
	}, true
}

// wantsHuman detects an explicit ask for a real person in the current turn.
func wantsHuman(turn string) bool {
	lower := strings.ToLower(turn)
	for _, phrase := range []string{
		"human", "real person", "agent", "someone from your team",
		"talk to a person", "speak to a person", "speak with someone",
		"talk to someone", "customer service rep",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func weekdayName(day int) string {
	names := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	if day < 0 || day > 6 {
		return "Unknown"
	}
	return names[day]
}
