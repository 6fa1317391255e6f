package notification

import (
	"context"
	"fmt"

	domain "lab-registration/internal/domain/registration"
	interfaces "lab-registration/internal/interfaces/infrastructure"
)

// Notifier turns queued registration events into messages for the student
type Notifier struct {
	repos  interfaces.Repositories
	sender Sender
}

func NewNotifier(repos interfaces.Repositories, sender Sender) *Notifier {
	return &Notifier{repos: repos, sender: sender}
}

// Handle matches interfaces.EventHandler
func (n *Notifier) Handle(ctx context.Context, event interfaces.NotificationEvent) error {
	student, err := n.repos.Students.GetByID(ctx, event.StudentID)
	if err != nil {
		return fmt.Errorf("failed to load student %s: %w", event.StudentID, err)
	}
	if student == nil {
		return fmt.Errorf("student %s: %w", event.StudentID, domain.ErrNotFound)
	}

	session, err := n.repos.Sessions.GetByID(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", event.SessionID, err)
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}

	msg, err := Render(event, student, session)
	if err != nil {
		return err
	}

	return n.sender.Send(ctx, msg)
}

// Render builds the message for one event
func Render(event interfaces.NotificationEvent, student *domain.Student, session *domain.LabSession) (Message, error) {
	greeting := "Hello"
	if student.FullName != "" {
		greeting = "Hello " + student.FullName
	}

	msg := Message{To: student.Email}
	switch event.Type {
	case interfaces.EventRegistrationConfirmed:
		msg.Subject = fmt.Sprintf("Registration confirmed: %s", session.Name)
		msg.Body = fmt.Sprintf("%s,\n\nYour place in %s (room %s) is confirmed.\n", greeting, session.Name, session.Room)
	case interfaces.EventRegistrationWaitlisted:
		msg.Subject = fmt.Sprintf("Waitlisted: %s", session.Name)
		msg.Body = fmt.Sprintf("%s,\n\n%s is full. You are number %d on the waitlist.\n", greeting, session.Name, event.Position)
	case interfaces.EventWaitlistPromoted:
		msg.Subject = fmt.Sprintf("A place opened up: %s", session.Name)
		msg.Body = fmt.Sprintf("%s,\n\nYou have been moved from the waitlist into %s (room %s).\n", greeting, session.Name, session.Room)
	default:
		return Message{}, fmt.Errorf("unknown notification event type %q", event.Type)
	}

	if session.Instructions != "" {
		msg.Body += "\n" + session.Instructions + "\n"
	}

	return msg, nil
}
