package domain

import "time"

// Role identifies what kind of account a caller authenticated as.
type Role string

const (
	RoleNone    Role = ""
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the account roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Identity is the caller resolved once per request by the auth layer.
type Identity struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsStudent reports whether the identity belongs to a logged-in student.
func (i *Identity) IsStudent() bool {
	return i != nil && i.Role == RoleStudent && i.Name != ""
}

// Modality is one game type with its own result table.
type Modality string

const (
	ModalityQuiz      Modality = "quiz"
	ModalityFill      Modality = "fill"
	ModalityCoding    Modality = "coding"
	ModalityParagraph Modality = "paragraph"
)

// Modalities lists every game type in a stable order.
var Modalities = []Modality{ModalityQuiz, ModalityFill, ModalityCoding, ModalityParagraph}

// ParseModality maps a path value onto a known modality.
func ParseModality(raw string) (Modality, error) {
	for _, m := range Modalities {
		if string(m) == raw {
			return m, nil
		}
	}
	return "", ErrUnknownModality
}

// Result is a completed attempt. Paragraph games store their marks in Score.
type Result struct {
	StudentName string    `json:"student_name"`
	GameID      int64     `json:"game_id"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentScore is one student's games and summed score within a set of results.
type StudentScore struct {
	StudentName string
	Games       int
	Total       int
}

// StudentStats summarises a student's results across every modality.
type StudentStats struct {
	TotalGamesPlayed int `json:"total_games_played"`
	TotalScore       int `json:"total_score"`
	AvgScore         int `json:"avg_score"`
}

// ModalityCounts is the number of completed games per modality.
type ModalityCounts struct {
	Quiz      int `json:"quiz"`
	Fill      int `json:"fill"`
	Coding    int `json:"coding"`
	Paragraph int `json:"para"`
}

// LeaderboardEntry is a ranked row of the global leaderboard.
type LeaderboardEntry struct {
	Rank             int    `json:"rank"`
	StudentName      string `json:"student_name"`
	TotalGamesPlayed int    `json:"total_games_played"`
	TotalScore       int    `json:"total_score"`
}

// Leaderboard is the truncated ranking plus, when outside the cut, the requester's own row.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"leaderboard"`
}

// Achievement pairs a student's total score with its tier breakdown.
type Achievement struct {
	TotalScore int `json:"totalScore"`
	RankDetails
}

// Student is a student account.
type Student struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	College      string     `json:"college"`
	Place        string     `json:"place"`
	District     string     `json:"district"`
	State        string     `json:"state"`
	Streak       int        `json:"streak"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// ProfileUpdate replaces the editable location fields of a student profile.
type ProfileUpdate struct {
	College  string `json:"college" validate:"max=200"`
	Place    string `json:"place" validate:"max=100"`
	District string `json:"district" validate:"max=100"`
	State    string `json:"state" validate:"max=100"`
}

// Admin is an administrator account.
type Admin struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// LoginState is the part of a student record the streak tracker reads.
type LoginState struct {
	LastLogin *time.Time
	Streak    int
}

// Profile is the student profile view with aggregated stats.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	College  string `json:"college"`
	Place    string `json:"place"`
	District string `json:"district"`
	State    string `json:"state"`
	StudentStats
}

// ChatMessage is a persisted community chat message.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderName string    `json:"sender_name"`
	SenderRole Role      `json:"sender_role"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
