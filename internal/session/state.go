package session

import "github.com/assist-by/cockpit/internal/domain"

// Phase는 세션 상태 머신의 단계를 정의합니다
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecovering
	PhaseLoggingIn
	PhaseAuthenticated
	PhaseFailed
)

// String은 Phase의 문자열 표현을 반환합니다
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecovering:
		return "recovering"
	case PhaseLoggingIn:
		return "logging_in"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// status는 단계에 대응하는 공통 진행 상태를 반환합니다
func (p Phase) status() domain.Status {
	switch p {
	case PhaseRecovering, PhaseLoggingIn:
		return domain.StatusLoading
	case PhaseAuthenticated:
		return domain.StatusSucceeded
	case PhaseFailed:
		return domain.StatusFailed
	default:
		return domain.StatusIdle
	}
}

// State는 UI가 읽는 세션 스냅샷입니다
type State struct {
	Phase           Phase
	IsAuthenticated bool
	Profile         *domain.UserProfile
	Status          domain.Status
	Error           string
}

// clone은 Profile 포인터를 공유하지 않는 사본을 반환합니다
func (s State) clone() State {
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

func newState(phase Phase) State {
	return State{Phase: phase, Status: phase.status()}
}
