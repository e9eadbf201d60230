package post

import "time"

type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions may happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

const (
	progressInitializing = "Initializing AI agents..."
	progressResearching  = "Research agent searching for trending topics..."
	progressWriting      = "Creating LinkedIn post..."
	progressSucceeded    = "LinkedIn post generated successfully!"
)

type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	Status   JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Progress string    `gorm:"type:text" json:"progress"`

	// Filled when completed
	Result *Result `gorm:"serializer:json;type:text" json:"result"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (Job) TableName() string { return "post_jobs" }

func (j *Job) clone() *Job {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// Result is the generated post together with the request that produced it.
type Result struct {
	Post        string    `json:"post"`
	Topic       string    `json:"topic"`
	Industry    string    `json:"industry"`
	Tone        string    `json:"tone"`
	Audience    string    `json:"audience"`
	WordCount   int       `json:"word_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
