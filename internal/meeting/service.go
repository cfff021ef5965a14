package meeting

import (
	"context"
	"time"

	"proofmeet/internal/fault"
	"proofmeet/internal/meetinghost"
)

// Host is the slice of the meeting-host client this service needs.
type Host interface {
	CreateMeeting(ctx context.Context, opts meetinghost.MeetingOptions) (meetinghost.Meeting, error)
}

// Store is the persistence this service needs.
type Store interface {
	Insert(ctx context.Context, m Meeting) (Meeting, error)
	Get(ctx context.Context, id string) (Meeting, error)
}

// Service creates and looks up meetings.
type Service struct {
	store Store
	host  Host
}

// NewService creates a service.
func NewService(store Store, host Host) *Service {
	return &Service{store: store, host: host}
}

// TestMeetingRequest describes a court representative's test meeting.
type TestMeetingRequest struct {
	Topic            string
	DurationMinutes  int
	StartDelay       time.Duration
	RecordingEnabled bool
	WaitingRoom      bool
}

// CreateTest creates a meeting on the external host and persists it. The
// host call carries its own timeout; on timeout the caller gets
// fault.ErrHostUnavailable instead of a hung request.
func (s *Service) CreateTest(ctx context.Context, req TestMeetingRequest) (Meeting, error) {
	if req.DurationMinutes <= 0 {
		return Meeting{}, fault.Errorf(fault.ErrInvalidInput, "duration %d minutes", req.DurationMinutes)
	}
	if req.Topic == "" {
		req.Topic = "ProofMeet Test Meeting"
	}

	hosted, err := s.host.CreateMeeting(ctx, meetinghost.MeetingOptions{
		Topic:            req.Topic,
		DurationMinutes:  req.DurationMinutes,
		StartDelay:       req.StartDelay,
		RecordingEnabled: req.RecordingEnabled,
		WaitingRoom:      req.WaitingRoom,
	})
	if err != nil {
		return Meeting{}, err
	}

	return s.store.Insert(ctx, Meeting{
		Source:          SourceTest,
		Topic:           req.Topic,
		ScheduledAt:     hosted.StartTime,
		PlannedDuration: time.Duration(req.DurationMinutes) * time.Minute,
		ExternalID:      hosted.ExternalID,
		JoinURL:         hosted.JoinURL,
		Password:        hosted.Password,
	})
}

// Get returns a meeting by id.
func (s *Service) Get(ctx context.Context, id string) (Meeting, error) {
	return s.store.Get(ctx, id)
}
