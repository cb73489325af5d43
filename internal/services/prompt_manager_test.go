package services

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"supportdesk/internal/models"
)

func promptSession() *models.SupportSession {
	return &models.SupportSession{
		ID:            uuid.New(),
		MerchantEmail: "merchant@shop.test",
		Status:        models.SessionActive,
	}
}

func TestBuildSystemInstruction_AvailabilityOnlyOnHumanAsk(t *testing.T) {
	pm := NewPromptManager()
	avail := models.Availability{Available: true}

	withAsk := pm.BuildSystemInstruction(promptSession(), avail, nil, "can I talk to a human please")
	assert.Contains(t, withAsk, "HUMAN AGENT AVAILABILITY")
	assert.Contains(t, withAsk, "available right now")

	withoutAsk := pm.BuildSystemInstruction(promptSession(), avail, nil, "where is my refund")
	assert.NotContains(t, withoutAsk, "HUMAN AGENT AVAILABILITY")
}

func TestBuildSystemInstruction_NextSlotWording(t *testing.T) {
	pm := NewPromptManager()
	avail := models.Availability{
		Available: false,
		NextSlot:  &models.NextSlot{Day: 1, StartTime: "09:00", Timezone: "America/New_York"},
	}

	out := pm.BuildSystemInstruction(promptSession(), avail, nil, "I want to speak with someone")
	assert.Contains(t, out, "Monday")
	assert.Contains(t, out, "09:00")
	assert.Contains(t, out, "America/New_York")

	// No schedule configured at all: fall back to the email promise.
	out = pm.BuildSystemInstruction(promptSession(), models.Availability{}, nil, "I want to speak with someone")
	assert.Contains(t, out, "reply by email")
}

func TestBuildSystemInstruction_KnowledgeSections(t *testing.T) {
	pm := NewPromptManager()
	ranker := NewKnowledgeRanker()

	entries := []models.KnowledgeEntry{
		entry("how do i reset my password", "Use the forgot-password link."),
		entry("shipping times overseas", "5-7 business days."),
	}

	// A strong match is promoted verbatim and the full list still rides along.
	ranked := ranker.Rank("how do i reset my password", entries)
	out := pm.BuildSystemInstruction(promptSession(), models.Availability{}, ranked, "how do i reset my password")
	assert.Contains(t, out, "BEST MATCHING ANSWER")
	assert.Contains(t, out, "Use the forgot-password link.")
	assert.Contains(t, out, "REFERENCE MATERIAL")
	assert.Contains(t, out, "5-7 business days.")

	// A weak top score keeps the reference list but promotes nothing.
	ranked = ranker.Rank("something entirely unrelated", entries)
	out = pm.BuildSystemInstruction(promptSession(), models.Availability{}, ranked, "something entirely unrelated")
	assert.NotContains(t, out, "BEST MATCHING ANSWER")
	assert.Contains(t, out, "REFERENCE MATERIAL")
}

func TestBuildHistory_RolesAndTurnOrder(t *testing.T) {
	pm := NewPromptManager()
	sessionID := uuid.New()
	messages := []models.Message{
		{SessionID: sessionID, Sender: models.SenderUser, Content: "my widget is broken"},
		{SessionID: sessionID, Sender: models.SenderAI, Content: "let me check"},
		{SessionID: sessionID, Sender: models.SenderAdmin, Content: "we shipped a fix"},
	}

	contents := pm.BuildHistory(messages, "did the fix land?", "")
	require.Len(t, contents, 4)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleModel, contents[2].Role)

	// The new turn always comes last, tagged as the user.
	last := contents[3]
	assert.Equal(t, genai.RoleUser, last.Role)
	require.NotEmpty(t, last.Parts)
	assert.Equal(t, "did the fix land?", last.Parts[0].Text)
}

func TestBuildHistory_InlineImageAttachment(t *testing.T) {
	pm := NewPromptManager()
	payload := []byte{0x89, 'P', 'N', 'G'}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	contents := pm.BuildHistory(nil, "here is a screenshot", dataURL)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "here is a screenshot", contents[0].Parts[0].Text)
	require.NotNil(t, contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, payload, contents[0].Parts[1].InlineData.Data)
}

func TestBuildHistory_NonInlineImageIgnored(t *testing.T) {
	pm := NewPromptManager()

	// Plain URLs and broken data URLs never become binary parts.
	for _, raw := range []string{
		"https://cdn.shop.test/screenshot.png",
		"data:image/png,not-base64-marked",
		"data:image/png;base64,!!!not-decodable!!!",
		"",
	} {
		contents := pm.BuildHistory(nil, "see attachment", raw)
		require.Len(t, contents, 1)
		assert.Len(t, contents[0].Parts, 1, raw)
	}
}

func TestWantsHuman(t *testing.T) {
	cases := []struct {
		turn string
		want bool
	}{
		{"I want to talk to a HUMAN", true},
		{"connect me with an agent", true},
		{"can someone from your team help", true},
		{"my invoice total looks wrong", false},
		{"the widget button does nothing", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, wantsHuman(tc.turn), tc.turn)
	}
}
