package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataVersion is the fixed tag recorded in every session's metadata.
const MetadataVersion = "1.0.0"

// DefaultGameTitle is used when a session is created without a title.
const DefaultGameTitle = "Unknown Game"

// Platform values recorded in session metadata.
const (
	PlatformMobile  = "mobile"
	PlatformWeb     = "web"
	PlatformUnknown = "unknown"
)

// End reasons used by the manager itself. Callers may supply their own.
const (
	EndReasonCompleted = "completed"
	EndReasonExpired   = "expired"
	EndReasonInactive  = "inactive"
)

// Milestone is one entry of a session's milestone log.
type Milestone struct {
	Milestone string `json:"milestone"`
	Timestamp int64  `json:"timestamp"`
}

// Task is one entry of a session's completed-task log.
type Task struct {
	TaskID    string `json:"taskId"`
	Timestamp int64  `json:"timestamp"`
}

// Metadata is captured when a session is created and never changes.
type Metadata struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Version   string `json:"version"`
}

// Session is a client-tracked record of one game-play attempt eligible for a
// reward claim. Timestamps and durations are Unix milliseconds.
type Session struct {
	ID                string          `json:"id"`
	GameID            string          `json:"gameId"`
	UserID            string          `json:"userId"`
	GameTitle         string          `json:"gameTitle"`
	StartTime         int64           `json:"startTime"`
	LastActivity      int64           `json:"lastActivity"`
	IsActive          bool            `json:"isActive"`
	IsClaimed         bool            `json:"isClaimed"`
	SessionCoins      float64         `json:"sessionCoins"`
	SessionXP         float64         `json:"sessionXP"`
	MilestonesReached []Milestone     `json:"milestonesReached"`
	TasksCompleted    []Task          `json:"tasksCompleted"`
	Metadata          Metadata        `json:"metadata"`
	EndTime           *int64          `json:"endTime,omitempty"`
	EndReason         string          `json:"endReason,omitempty"`
	Duration          *int64          `json:"duration,omitempty"`
	ClaimTime         *int64          `json:"claimTime,omitempty"`
	ClaimData         json.RawMessage `json:"claimData,omitempty"`
}

// Age returns how long ago the session started, relative to now.
func (s *Session) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.StartTime) * time.Millisecond
}

// Idle returns how long ago the session last saw activity, relative to now.
func (s *Session) Idle(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.LastActivity) * time.Millisecond
}

// Clone returns a deep copy so callers never share slices with the live table.
func (s *Session) Clone() Session {
	c := *s
	c.MilestonesReached = append([]Milestone(nil), s.MilestonesReached...)
	c.TasksCompleted = append([]Task(nil), s.TasksCompleted...)
	if c.MilestonesReached == nil {
		c.MilestonesReached = []Milestone{}
	}
	if c.TasksCompleted == nil {
		c.TasksCompleted = []Task{}
	}
	if s.EndTime != nil {
		v := *s.EndTime
		c.EndTime = &v
	}
	if s.Duration != nil {
		v := *s.Duration
		c.Duration = &v
	}
	if s.ClaimTime != nil {
		v := *s.ClaimTime
		c.ClaimTime = &v
	}
	if s.ClaimData != nil {
		c.ClaimData = append(json.RawMessage(nil), s.ClaimData...)
	}
	return c
}

// GameData carries the caller-supplied details captured at session creation.
type GameData struct {
	Title       string
	UserAgent   string
	NativeShell bool
}

// Activity is one activity event. Nil or empty fields are left untouched.
type Activity struct {
	Type             string   `json:"type,omitempty"`
	SessionCoins     *float64 `json:"sessionCoins,omitempty"`
	SessionXP        *float64 `json:"sessionXP,omitempty"`
	MilestoneReached string   `json:"milestoneReached,omitempty"`
	TaskCompleted    string   `json:"taskCompleted,omitempty"`
}

// ClaimData holds the optional overrides applied when a session ends or is claimed.
type ClaimData struct {
	Coins     *float64 `json:"coins,omitempty"`
	XP        *float64 `json:"xp,omitempty"`
	IsClaimed bool     `json:"isClaimed,omitempty"`
}

// ClaimResult is the backend's claim receipt. Raw keeps the body verbatim.
type ClaimResult struct {
	CoinsTransferred float64         `json:"coinsTransferred"`
	XPTransferred    float64         `json:"xpTransferred"`
	Raw              json.RawMessage `json:"-"`
}

// SessionStats is recomputed on demand over the live table.
type SessionStats struct {
	ActiveSessions  int     `json:"activeSessions"`
	TotalSessions   int     `json:"totalSessions"`
	TotalCoins      float64 `json:"totalCoins"`
	TotalXP         float64 `json:"totalXP"`
	AverageDuration float64 `json:"averageDuration"`
}

// Summarize computes stats over sessions. AverageDuration (ms) only covers
// sessions carrying a duration.
func Summarize(sessions []Session) SessionStats {
	var stats SessionStats
	var durationSum int64
	var withDuration int
	for i := range sessions {
		s := &sessions[i]
		stats.TotalSessions++
		if s.IsActive {
			stats.ActiveSessions++
		}
		stats.TotalCoins += s.SessionCoins
		stats.TotalXP += s.SessionXP
		if s.Duration != nil {
			durationSum += *s.Duration
			withDuration++
		}
	}
	if withDuration > 0 {
		stats.AverageDuration = float64(durationSum) / float64(withDuration)
	}
	return stats
}

// EncodeEntries serializes sessions as an ordered array of [id, session] pairs.
func EncodeEntries(sessions []Session) ([]byte, error) {
	entries := make([][2]any, 0, len(sessions))
	for i := range sessions {
		entries = append(entries, [2]any{sessions[i].ID, sessions[i]})
	}
	return json.Marshal(entries)
}

// DecodeEntries parses the output of EncodeEntries. An empty input yields no sessions.
func DecodeEntries(data []byte) ([]Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode session entries: %w", err)
	}

	sessions := make([]Session, 0, len(entries))
	for i, raw := range entries {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", i, err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("decode entry %d: want 2 elements, got %d", i, len(pair))
		}

		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return nil, fmt.Errorf("decode entry %d id: %w", i, err)
		}
		var s Session
		if err := json.Unmarshal(pair[1], &s); err != nil {
			return nil, fmt.Errorf("decode entry %d session: %w", i, err)
		}
		if s.ID == "" {
			s.ID = id
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
