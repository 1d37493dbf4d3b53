package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolbus/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationBoardingPrompt   NotificationType = "BOARDING_PROMPT"
	NotificationBoardingRecorded NotificationType = "BOARDING_RECORDED"
	NotificationRiderAbsent      NotificationType = "RIDER_NOT_ATTENDING"
	NotificationStatusChanged    NotificationType = "STATUS_CHANGED"
	NotificationTripCompleted    NotificationType = "TRIP_COMPLETED"
	NotificationPush             NotificationType = "PUSH"
)

// recentLimit bounds the alerts kept per recipient.
const recentLimit = 50

// Notification represents a local alert.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"` // guardian or vehicle ID; empty means everyone
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PushMessage is an inbound push delivered by an external channel.
type PushMessage struct {
	Recipient string
	Title     string
	Body      string
}

// NotificationService dispatches fire-and-forget alerts: it logs them, keeps the
// most recent ones per recipient and hands them to registered listeners.
type NotificationService struct {
	logger *slog.Logger

	mu        sync.RWMutex
	recent    map[string][]Notification
	listeners []func(Notification)
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{logger: logger, recent: make(map[string][]Notification)}
}

// OnAlert registers fn to be called for every alert. fn must not block.
func (s *NotificationService) OnAlert(fn func(Notification)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Recent returns the latest alerts addressed to recipientID, oldest first.
func (s *NotificationService) Recent(recipientID string) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.recent[recipientID]...)
}

// NotifyBoardingPrompt asks the driver for a decision about the rider at the stop.
func (s *NotificationService) NotifyBoardingPrompt(ctx context.Context, vehicleID string, rider *domain.Rider) {
	s.send(ctx, Notification{
		Type:        NotificationBoardingPrompt,
		RecipientID: vehicleID,
		Title:       "Arrived at stop",
		Message:     fmt.Sprintf("Did %s board the school bus?", FormatName(rider.Name)),
		Data:        map[string]any{"rider_id": rider.ID},
	})
}

// NotifyBoardingRecorded confirms a boarding decision to the driver.
func (s *NotificationService) NotifyBoardingRecorded(ctx context.Context, vehicleID string, rider *domain.Rider, boarded bool) {
	msg := fmt.Sprintf("%s did not board the school bus.", FormatName(rider.Name))
	if boarded {
		msg = fmt.Sprintf("%s has boarded the school bus.", FormatName(rider.Name))
	}
	s.send(ctx, Notification{
		Type:        NotificationBoardingRecorded,
		RecipientID: vehicleID,
		Title:       "Boarding recorded",
		Message:     msg,
		Data:        map[string]any{"rider_id": rider.ID, "boarded": boarded},
	})
}

// NotifyRiderNotAttending tells the driver a rider was dropped from the route.
func (s *NotificationService) NotifyRiderNotAttending(ctx context.Context, vehicleID string, rider *domain.Rider) {
	s.send(ctx, Notification{
		Type:        NotificationRiderAbsent,
		RecipientID: vehicleID,
		Title:       "Student not attending",
		Message:     fmt.Sprintf("%s is not attending today and has been removed from the route.", FormatName(rider.Name)),
		Data:        map[string]any{"rider_id": rider.ID},
	})
}

// NotifyGuardianStatusChanged tells a guardian about a boarding outcome.
func (s *NotificationService) NotifyGuardianStatusChanged(ctx context.Context, guardianID string, rider *domain.Rider) {
	msg := fmt.Sprintf("%s did not board the school bus.", FormatName(rider.Name))
	if rider.BoardingStatus == domain.BoardingStatusBoarded {
		msg = fmt.Sprintf("%s has boarded the school bus.", FormatName(rider.Name))
	}
	s.send(ctx, Notification{
		Type:        NotificationStatusChanged,
		RecipientID: guardianID,
		Title:       "Boarding update",
		Message:     msg,
		Data:        map[string]any{"rider_id": rider.ID, "status": string(rider.BoardingStatus)},
	})
}

// NotifyTripCompleted tells the driver the run is over.
func (s *NotificationService) NotifyTripCompleted(ctx context.Context, vehicleID string, boarded int) {
	s.send(ctx, Notification{
		Type:        NotificationTripCompleted,
		RecipientID: vehicleID,
		Title:       "Trip completed",
		Message:     fmt.Sprintf("Returned to the depot with %d students.", boarded),
	})
}

// HandlePush turns an inbound push message into the same local alert path.
func (s *NotificationService) HandlePush(ctx context.Context, msg PushMessage) {
	s.send(ctx, Notification{
		Type:        NotificationPush,
		RecipientID: msg.Recipient,
		Title:       msg.Title,
		Message:     msg.Body,
	})
}

// send delivers a notification. Delivery never fails the caller.
func (s *NotificationService) send(ctx context.Context, n Notification) {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()

	s.logger.InfoContext(ctx, "notification",
		slog.String("type", string(n.Type)),
		slog.String("recipient", n.RecipientID),
		slog.String("title", n.Title),
		slog.String("message", n.Message))

	s.mu.Lock()
	list := append(s.recent[n.RecipientID], n)
	if len(list) > recentLimit {
		list = list[len(list)-recentLimit:]
	}
	s.recent[n.RecipientID] = list
	listeners := append([]func(Notification){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}
