package notify

import (
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/jhjames1/peerchat/pkg/models"
)

func sessionURL(dashboardURL, sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s", strings.TrimRight(dashboardURL, "/"), sessionID)
}

func section(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}

func linkButton(label, url string) goslack.Block {
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, label, false, false))
	btn.URL = url
	return goslack.NewActionBlock("", btn)
}

// BuildWaitingMessage announces a session waiting for a specialist.
func BuildWaitingMessage(session *models.ChatSession, dashboardURL string) ([]goslack.Block, string) {
	text := fmt.Sprintf(":wave: *Chat #%d is waiting for a specialist*\nStarted %s",
		session.SessionNumber, session.StartedAt.UTC().Format(time.Kitchen+" MST"))

	blocks := []goslack.Block{section(text)}
	if dashboardURL != "" {
		blocks = append(blocks, linkButton("Open Waiting List", sessionURL(dashboardURL, session.ID)))
	}
	return blocks, fmt.Sprintf("Chat #%d is waiting for a specialist", session.SessionNumber)
}

// BuildClaimedMessage reports who picked a session up.
func BuildClaimedMessage(session *models.ChatSession, specialist *models.Specialist) ([]goslack.Block, string) {
	name := "A specialist"
	if specialist != nil && specialist.DisplayName != "" {
		name = specialist.DisplayName
	}
	text := fmt.Sprintf(":white_check_mark: *%s* picked up chat #%d", name, session.SessionNumber)
	if session.SlotNumber != nil {
		text += fmt.Sprintf(" (slot %d)", *session.SlotNumber+1)
	}
	return []goslack.Block{section(text)}, fmt.Sprintf("%s picked up chat #%d", name, session.SessionNumber)
}

// BuildProposalMessage announces an appointment offered to a user.
func BuildProposalMessage(proposal *models.PendingProposal) ([]goslack.Block, string) {
	start := proposal.ProposedStart.UTC().Format("Mon Jan 2 15:04 MST")
	text := fmt.Sprintf(":calendar: *Appointment proposed* for %s (%s)\nAwaiting reply until %s",
		start,
		proposal.ProposedEnd.Sub(proposal.ProposedStart).Round(time.Minute),
		proposal.ExpiresAt.UTC().Format("Mon Jan 2 15:04 MST"))
	return []goslack.Block{section(text)}, "Appointment proposed for " + start
}
