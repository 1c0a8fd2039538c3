package notify

import (
	"fmt"
	"strings"
)

// Message is the rendered content for a trigger.
type Message struct {
	Kind    Kind    `json:"kind"`
	Variant Variant `json:"variant"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
}

// Render produces the user-facing text for trigger.
func Render(trigger Trigger, snap Snapshot) Message {
	msg := Message{Kind: trigger.Kind, Variant: trigger.Variant}
	name := firstName(snap.Recipient.Name)

	switch trigger.Kind {
	case KindDailyReminder:
		msg.Title = "Time to practice"
		msg.Body = fmt.Sprintf("%s, your mat is waiting. A few minutes today keeps your rhythm going.", name)
	case KindLoginStreak:
		switch trigger.Variant {
		case VariantWarning:
			msg.Title = fmt.Sprintf("Keep your %d-day streak alive", trigger.Value)
			msg.Body = "Check in today so your login streak doesn't reset."
		case VariantCelebration:
			msg.Title = fmt.Sprintf("%d days in a row!", trigger.Value)
			msg.Body = fmt.Sprintf("Nice work, %s. You've checked in %d days straight.", name, trigger.Value)
		case VariantReengagement:
			msg.Title = "We miss you"
			msg.Body = fmt.Sprintf("%s, it's been a while. Come back for a short session today.", name)
		}
	case KindActivityStreak:
		switch trigger.Variant {
		case VariantWarning:
			msg.Title = fmt.Sprintf("Your %d-day practice streak is at risk", trigger.Value)
			msg.Body = "Practice a single pose today to keep it going."
		case VariantCelebration:
			msg.Title = fmt.Sprintf("%d days of practice!", trigger.Value)
			msg.Body = fmt.Sprintf("%s, you've practiced %d days in a row.", name, trigger.Value)
		}
	case KindProgressMilestone:
		switch trigger.Variant {
		case VariantMilestone:
			msg.Title = fmt.Sprintf("%d sessions completed", trigger.Value)
			msg.Body = fmt.Sprintf("Congratulations %s, you've logged %d practice sessions.", name, trigger.Value)
		case VariantFirstTime:
			msg.Title = fmt.Sprintf("Your first %s", trigger.Subject)
			msg.Body = fmt.Sprintf("You just practiced your first %s. Welcome to the flow.", trigger.Subject)
		}
	case KindFeatureAnnouncement:
		for _, a := range snap.Announcements {
			if a.ID == trigger.Subject {
				msg.Title = a.Title
				msg.Body = a.Body
				break
			}
		}
		if msg.Title == "" {
			msg.Title = "What's new"
		}
	}
	return msg
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Hi there"
	}
	return fields[0]
}
